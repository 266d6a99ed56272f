package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/s3zip/internal/app"
	"github.com/newthinker/s3zip/internal/handler"
	"github.com/newthinker/s3zip/internal/response"
)

// invoke runs fn with event as payload and writes the result to out. A
// timeout above zero becomes the invocation deadline.
func invoke(out io.Writer, build func(handler.Deps) handler.Func, event any, timeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	a, err := app.New(ctx, app.Options{
		ConfigPath: cfgFile,
		Debug:      debug,
		LocalRoot:  localRoot,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	res, err := build(a.Deps())(ctx, payload)
	if err != nil {
		return err
	}
	return printResult(out, res)
}

func printResult(out io.Writer, res response.Result) error {
	var body any
	if err := json.Unmarshal([]byte(res.Body), &body); err != nil {
		body = res.Body
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"statusCode": res.StatusCode, "body": body}); err != nil {
		return err
	}

	if res.StatusCode >= 400 {
		return fmt.Errorf("run failed with status %d", res.StatusCode)
	}
	return nil
}
