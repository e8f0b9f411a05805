// Command fem-core runs a Core process (§2, §3, §6): it hosts one or
// more federates, owns their shared HandleManager, and forwards
// anything not addressed to a locally hosted federate up to the broker
// or router it registers with. Adapted from the teacher's
// bodies/coder process, which read newline-JSON envelopes from stdin;
// this version speaks framed ActionMessages over the parent connection
// instead, since §6 requires byte-exact ActionMessage framing.
package main

import (
	"flag"
	"math/rand"

	"github.com/fep-fem/cosim-core/internal/core"
	"github.com/fep-fem/cosim-core/internal/query"
	"github.com/fep-fem/cosim-core/protocol"
	"github.com/sirupsen/logrus"
)

func main() {
	name := flag.String("name", "core", "name of this core within the federation")
	federateCount := flag.Int("federates", 1, "number of placeholder federates this core hosts at startup")
	brokerAddress := flag.String("broker_address", "", "address of the broker or router to register with")
	restrictive := flag.Bool("restrictive_time_policy", false, "disable second-order time-advance projections for every hosted federate (§4.4 rule 5)")
	logLevel := flag.String("log_level", "info", "logrus level: trace, debug, info, warning, error")
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if *brokerAddress == "" {
		logger.Fatal("fem-core requires --broker_address for the broker/router it registers with")
	}

	identity, err := protocol.GenerateIdentity()
	if err != nil {
		logger.WithError(err).Fatal("generating core identity")
	}

	upstreamStream, err := protocol.Dial(*brokerAddress)
	if err != nil {
		logger.WithError(err).Fatal("dialing broker/router")
	}

	selfID := protocol.GlobalFederateId(0x70000000 + rand.Int31n(0x0FFFFFFF))
	reg := protocol.NewActionMessage(protocol.CMD_REG_FED)
	reg.SourceID = selfID
	reg.StringData = []string{*name, protocol.EncodePublicKey(identity.Public)}
	if err := upstreamStream.Write(reg); err != nil {
		logger.WithError(err).Fatal("registering with broker/router")
	}
	if _, err := upstreamStream.Read(); err != nil {
		logger.WithError(err).Fatal("waiting for CMD_BROKER_ACK")
	}

	c := core.New(*name, selfID, func(msg protocol.ActionMessage) {
		if err := upstreamStream.Write(msg); err != nil {
			logger.WithError(err).Warn("writing to broker/router")
		}
	})
	engine := query.NewCoreEngine(c)
	_ = engine // wired for completeness; a production build would answer CMD_QUERY arriving over upstreamStream the same way fem-broker's handler does

	for i := 0; i < *federateCount; i++ {
		fedGlobalID := selfID + protocol.GlobalFederateId(i+1)
		fedName := *name
		if *federateCount > 1 {
			fedName = federateNameFor(*name, i)
		}
		if _, err := c.RegisterFederate(fedName, fedGlobalID, *restrictive); err != nil {
			logger.WithError(err).WithField("federate", fedName).Fatal("registering federate")
		}
	}

	logger.WithFields(logrus.Fields{"name": *name, "federates": *federateCount, "parent": *brokerAddress}).Info("fem-core online")

	for {
		msg, err := upstreamStream.Read()
		if err != nil {
			logger.WithError(err).Warn("lost connection to broker/router")
			return
		}
		c.Route(msg)
	}
}

func federateNameFor(coreName string, index int) string {
	return coreName + "-" + itoa(index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [12]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}
