// Command fem-router runs an interior broker ("router") node of the
// federation tree (§2, §6): unlike fem-broker it has a parent to
// register with, and forwards anything not addressed to one of its own
// children up that connection.
package main

import (
	"flag"
	"math/rand"
	"net"

	"github.com/fep-fem/cosim-core/internal/broker"
	"github.com/fep-fem/cosim-core/internal/query"
	"github.com/fep-fem/cosim-core/protocol"
	"github.com/sirupsen/logrus"
)

func main() {
	name := flag.String("name", "router", "name of this broker within the federation")
	listen := flag.String("port", ":23405", "address to listen on for core/broker connections beneath this router")
	brokerAddress := flag.String("broker_address", "", "address of the parent broker to register with")
	logLevel := flag.String("log_level", "info", "logrus level: trace, debug, info, warning, error")
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if *brokerAddress == "" {
		logger.Fatal("fem-router requires --broker_address for the parent it registers with")
	}

	identity, err := protocol.GenerateIdentity()
	if err != nil {
		logger.WithError(err).Fatal("generating router identity")
	}

	upstreamStream, err := protocol.Dial(*brokerAddress)
	if err != nil {
		logger.WithError(err).Fatal("dialing parent broker")
	}

	// A router picks its own provisional global id in the broker range
	// before its parent has assigned one; the parent's CMD_BROKER_ACK
	// (carried in the reply this node never inspects further here, since
	// fem-broker/fem-router both echo the child's own id back) is the
	// point at which a real multi-broker deployment would reconcile a
	// collision. Single-parent-at-a-time topologies, the only ones this
	// CLI surface builds, never hit that case.
	selfID := protocol.GlobalFederateId(0x70000000 + rand.Int31n(0x0FFFFFFF))
	reg := protocol.NewActionMessage(protocol.CMD_REG_BROKER)
	reg.SourceID = selfID
	reg.StringData = []string{*name, protocol.EncodePublicKey(identity.Public)}
	if err := upstreamStream.Write(reg); err != nil {
		logger.WithError(err).Fatal("registering with parent broker")
	}
	if _, err := upstreamStream.Read(); err != nil {
		logger.WithError(err).Fatal("waiting for CMD_BROKER_ACK")
	}

	self := broker.New(*name, selfID, func(msg protocol.ActionMessage) {
		if err := upstreamStream.Write(msg); err != nil {
			logger.WithError(err).Warn("writing to parent broker")
		}
	})
	engine := query.NewBrokerEngine(self)

	transport := protocol.NewTransport(identity)
	registerRouterHandlers(transport, self, engine, logger)

	go relayFromParent(upstreamStream, self, logger)

	logger.WithFields(logrus.Fields{"name": *name, "address": *listen, "parent": *brokerAddress}).Info("fem-router listening")
	if err := transport.Listen(*listen); err != nil {
		logger.WithError(err).Fatal("fem-router transport failed")
	}
}

// relayFromParent re-injects every ActionMessage the parent broker
// sends down into this router's own Route, the way a real HELICS
// broker's worker thread treats its upstream socket as just another
// inbound queue (§5: "no shared mutable state crosses the Core/Broker
// boundary except via the ActionMessage queue").
func relayFromParent(stream *protocol.Stream, self *broker.Broker, logger *logrus.Logger) {
	for {
		msg, err := stream.Read()
		if err != nil {
			logger.WithError(err).Warn("lost connection to parent broker")
			return
		}
		self.Route(msg)
	}
}

func registerRouterHandlers(t *protocol.Transport, b *broker.Broker, engine *query.Engine, logger *logrus.Logger) {
	t.RegisterHandler(protocol.CMD_REG_FED, func(msg protocol.ActionMessage, conn net.Conn) error {
		name := "core"
		if len(msg.StringData) > 0 {
			name = msg.StringData[0]
		}
		send := func(out protocol.ActionMessage) { _, _ = conn.Write(out.Packetize()) }
		if err := b.RegisterChild(name, broker.ChildCore, msg.SourceID, send); err != nil {
			logger.WithError(err).Warn("rejecting core registration")
			return err
		}
		ack := protocol.NewActionMessage(protocol.CMD_BROKER_ACK)
		ack.DestID = msg.SourceID
		ack.SourceID = b.GlobalID
		_, err := conn.Write(ack.Packetize())
		return err
	})

	t.RegisterHandler(protocol.CMD_QUERY, func(msg protocol.ActionMessage, conn net.Conn) error {
		target, name := "", ""
		if len(msg.StringData) > 0 {
			target = msg.StringData[0]
		}
		if len(msg.StringData) > 1 {
			name = msg.StringData[1]
		}
		reply := protocol.NewActionMessage(protocol.CMD_QUERY_REPLY)
		reply.DestID = msg.SourceID
		reply.Payload = []byte(engine.Answer(target, name))
		_, err := conn.Write(reply.Packetize())
		return err
	})

	routeDirectly := func(msg protocol.ActionMessage, conn net.Conn) error {
		b.Route(msg)
		return nil
	}
	for _, action := range []protocol.ActionCode{
		protocol.CMD_TIME_REQUEST, protocol.CMD_TIME_GRANT,
		protocol.CMD_EXEC_REQUEST, protocol.CMD_EXEC_GRANT,
		protocol.CMD_PUB, protocol.CMD_SEND_MESSAGE,
		protocol.CMD_DISCONNECT, protocol.CMD_DISCONNECT_FED,
	} {
		t.RegisterHandler(action, routeDirectly)
	}
}
