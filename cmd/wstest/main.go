// Wstest tests this module's WebSocket engine against the fuzzing tools of
// the [Autobahn Testsuite].
//
// With no arguments it drives the client side: it dials the suite's fuzzing
// server on ws://127.0.0.1:9001 and echoes every received message back.
// With "serve [addr]" it drives the server side instead: it listens for the
// suite's fuzzing client and echoes, exercising the accept/upgrade path.
//
// [Autobahn Testsuite]: https://github.com/crossbario/autobahn-testsuite
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/mmaltais/wsengine/internal/logger"
	"github.com/mmaltais/wsengine/pkg/websocket"
)

const (
	baseURL = "ws://127.0.0.1:9001"
	agent   = "wsengine"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		addr := ":9002"
		if len(os.Args) > 2 {
			addr = os.Args[2]
		}
		serveEcho(addr)
		return
	}

	ep := websocket.NewEndpoint(websocket.Config{UserAgent: agent}, websocket.Handlers{})

	n := getCaseCount(ep)
	slog.Info("case count", slog.Int("n", n))

	for i := range n {
		runCase(ep, i+1)
	}

	updateReports(ep)
}

// serveEcho echoes every data message back to its sender, for the fuzzing
// client ("wstest -m fuzzingclient").
func serveEcho(addr string) {
	var ep *websocket.Endpoint
	ep = websocket.NewEndpoint(websocket.Config{UserAgent: agent}, websocket.Handlers{
		OnMessage: func(h websocket.Handle, msg websocket.Message) {
			echo(ep, h, msg)
		},
	})
	if err := ep.ListenAndServe(addr); err != nil {
		logger.FatalError("serve error", err)
	}
}

func echo(ep *websocket.Endpoint, h websocket.Handle, msg websocket.Message) {
	conn, err := ep.Get(h)
	if err != nil {
		return // already closed
	}

	var serr *websocket.Error
	switch msg.Opcode {
	case websocket.OpcodeText:
		serr = conn.SendText(msg.Payload)
	case websocket.OpcodeBinary:
		serr = conn.SendBinary(msg.Payload)
	default:
		slog.Error("unexpected opcode in data message", slog.String("opcode", msg.Opcode.String()))
		return
	}

	if serr != nil {
		slog.Error("echo error", slog.Any("error", serr))
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

// getCaseCount retrieves the number of enabled test cases from
// the Autobahn fuzzing server, using a WebSocket request.
func getCaseCount(ep *websocket.Endpoint) int {
	n := 0
	done := make(chan struct{})

	_, err := ep.Dial(context.Background(), baseURL+"/getCaseCount", websocket.WithHandlers(websocket.Handlers{
		OnMessage: func(h websocket.Handle, msg websocket.Message) {
			count, err := strconv.Atoi(string(msg.Payload))
			if err != nil {
				logger.FatalError("invalid test case count", err)
			}
			n = count
		},
		OnClose: func(websocket.Handle, websocket.CloseInfo) { close(done) },
		OnFail:  func(h websocket.Handle, err *websocket.Error) { logger.FatalError("handshake failed", err) },
	}))
	if err != nil {
		logger.FatalError("dial error", err)
	}

	<-done
	return n
}

// updateReports instructs the Autobahn fuzzing server to generate/update
// all the HTML and JSON files for all the test-case results.
func updateReports(ep *websocket.Endpoint) {
	slog.Info("updating reports")

	url := fmt.Sprintf("%s/updateReports?agent=%s", baseURL, agent)
	if _, err := ep.Dial(context.Background(), url); err != nil {
		logger.FatalError("dial error", err)
	}
}

func runCase(ep *websocket.Endpoint, i int) {
	l := slog.With(slog.Int("case", i))
	l.Info("starting test")

	done := make(chan struct{})
	url := fmt.Sprintf("%s/runCase?case=%d&agent=%s", baseURL, i, agent)

	_, err := ep.Dial(context.Background(), url, websocket.WithHandlers(websocket.Handlers{
		OnMessage: func(h websocket.Handle, msg websocket.Message) {
			l.Info("received message",
				slog.String("opcode", msg.Opcode.String()),
				slog.Int("length", len(msg.Payload)))
			echo(ep, h, msg)
		},
		OnClose: func(websocket.Handle, websocket.CloseInfo) { close(done) },
		OnFail:  func(h websocket.Handle, err *websocket.Error) { close(done) },
	}))
	if err != nil {
		logger.FatalError("dial error", err)
	}

	<-done
}
