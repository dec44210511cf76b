package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/baxromumarov/syncevent"
	"github.com/baxromumarov/syncevent/queue"
)

type order struct {
	ID    int
	Total float64
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	hub := syncevent.New[string, order](
		syncevent.WithLogger(logger),
		syncevent.WithPanicHandler(func(pe *syncevent.PanicError) {
			fmt.Println("handler panic:", pe.Value)
		}),
	)

	orders := queue.NewChannel[order](
		queue.WithFlushSizeThreshold(3),
		queue.WithFlushTimeWindow(20*time.Millisecond),
		queue.WithChannelLogger(logger),
	)

	l := hub.On("placed", func(o order) {
		if _, err := orders.Write(context.Background(), o); err != nil {
			logger.Warn("order dropped", zap.Int("id", o.ID), zap.Error(err))
		}
	}).On("placed", func(o order) {
		if o.Total < 0 {
			panic("negative total")
		}
	}).On("placed", func(o order) {
		fmt.Println("summary refreshed after order", o.ID)
	}, syncevent.WithDebounce(30*time.Millisecond, 0))
	defer l.Cancel()

	rec := hub.NewRecorder()
	rec.Record()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		for i := 1; i <= 5; i++ {
			hub.Emit("placed", order{ID: i, Total: float64(i) * 9.5})
		}
		hub.Emit("placed", order{ID: 6, Total: -1})
		hub.Emit("closed", order{})
	}()

	if _, err := hub.WaitUntil(ctx, syncevent.WaitSpec[string, order]{Event: "closed"}); err != nil {
		fmt.Println("wait failed:", err)
		return
	}

	for {
		readCtx, readCancel := context.WithTimeout(ctx, 100*time.Millisecond)
		o, err := orders.Read(readCtx)
		readCancel()
		if err != nil {
			break
		}
		fmt.Printf("processed order %d (%.2f)\n", o.ID, o.Total)
	}

	if err := orders.Close(ctx); err != nil {
		fmt.Println("close failed:", err)
	}
	s := orders.Stats()
	fmt.Printf("writes=%d flushes=%d auto=%d avg=%v\n",
		s.TotalWrites, s.TotalFlushes, s.AutoFlushes, s.AvgFlushDelay)

	rec.Stop()
	fmt.Println("recorded events:", rec.Len())
}
