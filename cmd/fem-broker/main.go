// Command fem-broker runs the root broker of a federation (§2, §6): the
// top of the tree, with no upstream of its own, that admits cores and
// nested brokers as children and aggregates their timing via a
// Forwarding coordinator.
package main

import (
	"flag"
	"net"
	"time"

	"github.com/fep-fem/cosim-core/internal/broker"
	"github.com/fep-fem/cosim-core/internal/query"
	"github.com/fep-fem/cosim-core/protocol"
	"github.com/sirupsen/logrus"
)

func main() {
	name := flag.String("name", "broker", "name of this broker within the federation")
	listen := flag.String("port", ":23404", "address to listen on for core/broker connections")
	localport := flag.String("localport", "", "alias for --port, accepted for CLI-surface parity with the reference implementation")
	logLevel := flag.String("log_level", "info", "logrus level: trace, debug, info, warning, error")
	maxcosimduration := flag.Duration("maxcosimduration", 0, "hard wall-clock cap on the federation; 0 disables it")
	disableRemoteControl := flag.Bool("disable_remote_control", false, "opt this broker out of terminate/echo/notify sendCommand traffic")
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.WithField("log_level", *logLevel).Warn("unrecognized log level, defaulting to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	address := *listen
	if *localport != "" {
		address = *localport
	}

	identity, err := protocol.GenerateIdentity()
	if err != nil {
		logger.WithError(err).Fatal("generating broker identity")
	}

	root := broker.NewRoot(*name)
	engine := query.NewBrokerEngine(root)

	transport := protocol.NewTransport(identity)
	registerBrokerHandlers(transport, root, engine, logger, *disableRemoteControl)

	if *maxcosimduration > 0 {
		go func() {
			<-time.After(*maxcosimduration)
			logger.WithField("maxcosimduration", maxcosimduration.String()).Warn("wall-clock cap expired, initiating federation-wide disconnect")
			root.Finalize()
		}()
	}

	logger.WithFields(logrus.Fields{"name": *name, "address": address}).Info("fem-broker listening")
	if err := transport.Listen(address); err != nil {
		logger.WithError(err).Fatal("fem-broker transport failed")
	}
}

// registerBrokerHandlers wires the broker's Route method and query
// engine to the transport's per-action handler table, the same
// dispatch shape the teacher's broker.go gives its HTTP ServeHTTP
// switch, adapted to ActionMessage actions instead of envelope types.
func registerBrokerHandlers(t *protocol.Transport, b *broker.Broker, engine *query.Engine, logger *logrus.Logger, disableRemoteControl bool) {
	t.RegisterHandler(protocol.CMD_REG_BROKER, func(msg protocol.ActionMessage, conn net.Conn) error {
		return admitChild(b, broker.ChildBroker, msg, conn, logger)
	})
	t.RegisterHandler(protocol.CMD_REG_FED, func(msg protocol.ActionMessage, conn net.Conn) error {
		return admitChild(b, broker.ChildCore, msg, conn, logger)
	})
	t.RegisterHandler(protocol.CMD_QUERY, func(msg protocol.ActionMessage, conn net.Conn) error {
		return answerQuery(engine, msg, conn)
	})
	t.RegisterHandler(protocol.CMD_SEND_COMMAND, func(msg protocol.ActionMessage, conn net.Conn) error {
		return handleCommand(b, msg, disableRemoteControl, logger)
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

func admitChild(b *broker.Broker, kind broker.ChildKind, msg protocol.ActionMessage, conn net.Conn, logger *logrus.Logger) error {
	childID := msg.SourceID
	name := "child"
	if len(msg.StringData) > 0 {
		name = msg.StringData[0]
	}
	send := func(out protocol.ActionMessage) { _, _ = conn.Write(out.Packetize()) }

	if err := b.RegisterChild(name, kind, childID, send); err != nil {
		logger.WithError(err).Warn("rejecting child registration")
		return err
	}

	ack := protocol.NewActionMessage(protocol.CMD_BROKER_ACK)
	ack.DestID = childID
	ack.SourceID = b.GlobalID
	_, err := conn.Write(ack.Packetize())
	return err
}

func answerQuery(engine *query.Engine, msg protocol.ActionMessage, conn net.Conn) error {
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
}

// handleCommand implements §6's federation-control surface: terminate,
// echo, notify, command_status, flush, or a user-defined string.
// DISABLE_REMOTE_CONTROL short-circuits every command except "flush".
// No capability token is checked.
func handleCommand(b *broker.Broker, msg protocol.ActionMessage, disableRemoteControl bool, logger *logrus.Logger) error {
	command := ""
	if len(msg.StringData) > 0 {
		command = msg.StringData[0]
	}
	if disableRemoteControl && command != "flush" {
		logger.WithField("command", command).Info("remote control disabled, ignoring sendCommand")
		return nil
	}
	switch command {
	case "terminate":
		logger.Info("terminate command received, disconnecting")
		b.Finalize()
	case "echo", "notify", "command_status", "flush":
		logger.WithField("command", command).Debug("acknowledged federation-control command")
	default:
		logger.WithField("command", command).Debug("user-defined federation-control command")
	}
	return nil
}
