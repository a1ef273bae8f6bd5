package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-io/mqttcore/client"
	"github.com/golang-io/mqttcore/dispatch"
	"github.com/golang-io/mqttcore/packet"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	c := client.New(
		client.URL("mqtt://127.0.0.1:1883"),
		client.KeepAlive(30*time.Second),
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.Run(ctx)
	})

	group.Go(func() error {
		// Subscribe blocks until Run has a connection up and the SUBACK
		// arrives; on error this loop retries after a second.
		for {
			if _, err := c.Subscribe(ctx, "demo", func(d dispatch.Delivery) bool {
				log.Printf("on: %s", d.Message.String())
				return true
			}, packet.Subscription{TopicFilter: "a/b/c"}); err != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Second):
					continue
				}
			}
			return nil
		}
	})

	group.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := c.Publish(ctx, "a/b/c", []byte(time.Now().Format("2006-01-02 15:04:05")), 1, false, nil); err != nil {
					log.Printf("publish: %v", err)
				}
			}
		}
	})

	group.Go(func() error {
		defer cancel()
		ignore := make(chan os.Signal, 1)
		sign := make(chan os.Signal, 1)
		signal.Notify(ignore, syscall.SIGHUP)
		signal.Notify(sign, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-sign:
			return fmt.Errorf("got signal: %s", sig)
		}
	})

	if err := group.Wait(); err != nil {
		log.Fatal(err)
	}
}
