// chatstream - A streaming chat client for SSE completion endpoints.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/chatstream/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
