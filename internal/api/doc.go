// Package api implements the HTTP ingress of the command service.
//
// Clients issue commands by name, list registered handlers, manage host
// permission grants and subscribe to the SSE lifecycle stream. Every JSON
// response uses the envelope {result, data | code+message, correlationId}.
package api
