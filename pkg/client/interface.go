package client

import "context"

// VisionClient sends a prompt with one base64 encoded picture to a vision
// model and returns the model's text reply
type VisionClient interface {
	Complete(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
