// Package httptts implements speech.Provider over a JSON HTTP synthesis
// service (POST /generate returning base64 audio, GET /capabilities).
package httptts
