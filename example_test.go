package sioclient_test

import (
	"context"
	"log"
	"time"

	"github.com/zyxar/sioclient"
)

func ExampleRegistry() {
	router := sioclient.NewRouter(nil)
	router.On("reading", func(h sioclient.Handle, sensor string, value float64) string {
		log.Printf("%d: %s=%v", h, sensor, value)
		return "stored"
	})
	registry := sioclient.NewRegistry(sioclient.WithSink(router))
	router.Bind(registry)

	cfg := sioclient.NewConfig("localhost:3000")
	cfg.Namespace = "/devices"
	cfg.Auth = func(sioclient.Handle) string { return `{"token":"s3cr3t"}` }
	h, err := registry.Create(cfg)
	if err != nil {
		log.Fatal(err)
	}
	registry.Begin(h)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	supervisor := sioclient.NewSupervisor(registry, time.Second)
	supervisor.SetNetworkAvailable(ctx, true)
	go supervisor.Run(ctx)

	for !registry.Connected(h) {
		time.Sleep(100 * time.Millisecond)
	}
	if err := registry.SendEvent(ctx, h, `{"temp":21.5}`, "reading"); err != nil {
		log.Println("send:", err)
	}
	registry.Shutdown(ctx)
}
