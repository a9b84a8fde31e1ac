package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/golang/glog"

	"github.com/robotalks/dfplayer.go/pkg/bridge/mqtt"
	"github.com/robotalks/dfplayer.go/pkg/env"
	"github.com/robotalks/dfplayer.go/pkg/framework"
	"github.com/robotalks/dfplayer.go/pkg/metrics/prometheus"
)

func init() {
	env.SetupFlags()
}

func serveMetrics(addr string, handler http.Handler) framework.Runnable {
	srv := &http.Server{Addr: addr, Handler: handler}
	return framework.NamedRun("metrics", framework.RunFunc(func(ctx context.Context) error {
		glog.Infof("metrics on %s", addr)
		return framework.RunWithContextCancel(ctx, func() { srv.Close() }, srv.ListenAndServe)
	}))
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := env.Default()
	if err := conf.Load(); err != nil {
		glog.Exitln(err)
	}

	runner := framework.NewRunner().HandleSignals()
	player, closer, err := conf.NewPlayer(runner.Context())
	if err != nil {
		glog.Exitf("open %s: %v", conf.URL, err)
	}
	defer closer.Close()

	if conf.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		player.Link().Observer = prometheus.New(reg)
		runner.Go(serveMetrics(conf.MetricsAddr, prometheus.Handler(reg)))
	}
	runner.Go(player)

	if conf.MQTTURL != "" {
		bridge, err := mqtt.New(conf.MQTTURL, conf.DeviceName(), player)
		if err != nil {
			glog.Exitf("mqtt %s: %v", conf.MQTTURL, err)
		}
		runner.Go(framework.NamedRun("mqtt", bridge))
	}

	glog.Infof("player %s on %s", conf.DeviceName(), conf.URL)
	if err := runner.Wait(); err != nil {
		glog.Exitln(err)
	}
}
