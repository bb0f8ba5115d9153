package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/mtkflash/pkg/report"
)

var (
	mqttURL = "mqtt://localhost:1883/mtk/"
)

func init() {
	if val := os.Getenv("MTK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	pub, err := report.NewPublisher(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	err = pub.Watch(func(rep *report.FlashReport) {
		segs := make([]string, 0, len(rep.Segments))
		for _, seg := range rep.Segments {
			segs = append(segs, seg.Name+"="+seg.Outcome)
		}
		log.Printf("%s: %s retries=%d [%s]", rep.Host, rep.Outcome, rep.Retries, strings.Join(segs, " "))
		for _, seg := range rep.Segments {
			if seg.Error != "" {
				log.Printf("%s: %s: %s", rep.Host, seg.Name, seg.Error)
			}
		}
	})
	if err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
