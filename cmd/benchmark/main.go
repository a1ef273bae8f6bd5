package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-io/mqttcore/client"
	"github.com/golang-io/mqttcore/dispatch"
	"github.com/golang-io/mqttcore/packet"
	"golang.org/x/sync/errgroup"
)

func main() {
	group, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 100; i++ {
		i := i
		c := client.New(
			client.URL("mqtt://127.0.0.1:1883"),
			client.ClientID(fmt.Sprintf("bench-%d", i)),
		)

		group.Go(func() error {
			return c.Run(ctx)
		})

		group.Go(func() error {
			if _, err := c.Subscribe(ctx, "bench", func(d dispatch.Delivery) bool {
				log.Printf("id=%s, msg=%s", c.ID(), d.Message)
				return true
			}, packet.Subscription{TopicFilter: "a/b/c"}); err != nil {
				return err
			}

			timer := time.NewTimer(time.Second)
			defer timer.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-timer.C:
					if err := c.Publish(ctx, fmt.Sprintf("topic-%d", i), []byte("hello world"), 0, false, nil); err != nil {
						log.Printf("publish: %v", err)
					}
					timer.Reset(time.Second)
				}
			}
		})
	}
	if err := group.Wait(); err != nil {
		log.Fatal(err)
	}
}
