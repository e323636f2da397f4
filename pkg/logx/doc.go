// Package logx configures the bot's structured logging.
//
// Logger is a small wrapper on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional chat sink (min-level + rate limiting) that mirrors
//     important lines into an operator chat through the transport adapter
package logx
