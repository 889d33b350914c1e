// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

// Command openapi-gen writes the server's OpenAPI document to a file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tablewise/aiwaiter/internal/pipeline"
	"github.com/tablewise/aiwaiter/internal/server"
	apperr "github.com/tablewise/aiwaiter/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/openapi.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI document written to %s\n", outPath)
}

// generateSpec registers every route against a stub waiter and returns the
// document huma derives from the request and response types.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(stubWaiter{}, nil, nil)
	if err != nil {
		return nil, err
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCLISetupFailure, "creating server")
	}
	defer func() { _ = srv.Close() }()
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

type stubWaiter struct{}

func (stubWaiter) Handle(context.Context, pipeline.Request) (*pipeline.Response, error) {
	return &pipeline.Response{}, nil
}
