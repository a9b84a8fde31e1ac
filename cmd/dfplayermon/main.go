package main

import (
	"flag"
	"log"
	"os"
	"path"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/dfplayer.go/pkg/bridge/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/dfplayer/"
)

func init() {
	if val := os.Getenv("DFPLAYER_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func decode(topic string, payload []byte) (proto.Message, bool) {
	var msg proto.Message
	switch path.Base(topic) {
	case mqtt.TopicCommand:
		msg = &mqtt.Command{}
	case mqtt.TopicReply:
		msg = &mqtt.Reply{}
	case mqtt.TopicEvent:
		msg = &mqtt.Event{}
	default:
		return nil, false
	}
	if err := proto.Unmarshal(payload, msg); err != nil {
		log.Printf("%s: bad message: %v", topic, err)
		return nil, true
	}
	return msg, true
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		msg, typed := decode(topic, payload)
		switch {
		case !typed:
			log.Printf("%s: %q", topic, string(payload))
		case msg != nil:
			log.Printf("%s: %s", topic, msg.String())
		}
	}))
	if err := q.Connect(); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
