// Package logx configures framesched's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller), or raw JSON
//   - File output JSON-structured
//   - Hot paths throttled (Limited, token bucket)
package logx
