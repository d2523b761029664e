// Package logx configures meetwatch's structured logging.
//
// Logger is a small wrapper on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional forwarding sink (min-level + rate limiting) so warnings
//     reach the operator channel without a separate alerting stack
package logx
