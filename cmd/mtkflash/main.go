package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/mtkflash/pkg/board"
	"github.com/robotalks/mtkflash/pkg/flasher"
	fx "github.com/robotalks/mtkflash/pkg/framework"
	"github.com/robotalks/mtkflash/pkg/report"
)

func init() {
	flasher.SetupFlags()
}

func main() {
	flag.Parse()

	conf := flasher.NewConfig()
	b := board.MustOpen(conf)
	f, err := b.NewFlasher(flasher.WithStateCallback(func(state flasher.State, seg flasher.Segment) {
		if seg.Name != "" {
			glog.Infof("[%s] %s", seg.Name, state)
		} else {
			glog.Infof("%s", state)
		}
	}))
	if err != nil {
		glog.Exitf("create flasher: %v", err)
	}

	ctx, cancel := fx.HandleSignals(context.Background(), flasher.Canceled.ExitCode())
	run, err := f.Run(ctx)
	cancel()
	if err != nil {
		glog.Errorf("flash failed: %v", err)
	}
	if err := b.Close(); err != nil {
		glog.Warningf("close board: %v", err)
	}

	rep := report.FromRun(b.HostID, run)
	for _, seg := range rep.Segments {
		fmt.Printf("%-4s %-18s %-24s retries=%d\n", seg.Name, seg.Outcome, seg.Phase, seg.Retries)
	}
	fmt.Printf("%s (exit %d)\n", rep.Outcome, rep.ExitCode)
	if conf.MQTTBrokerURL != "" {
		publish(conf.MQTTBrokerURL, rep)
	}

	glog.Flush()
	os.Exit(run.Outcome().ExitCode())
}

func publish(brokerURL string, rep *report.FlashReport) {
	pub, err := report.NewPublisher(brokerURL)
	if err != nil {
		glog.Warningf("report publisher: %v", err)
		return
	}
	defer pub.Close()
	if err := pub.Publish(rep); err != nil {
		glog.Warningf("publish report: %v", err)
	}
}
