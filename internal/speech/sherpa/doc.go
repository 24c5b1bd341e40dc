// Package sherpa implements speech.Provider on top of the embedded sherpa-onnx
// offline VITS engine. It supports speaking rate but not markup.
package sherpa
