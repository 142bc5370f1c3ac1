// capture-agent grabs frames from a local camera and posts them to the
// recycling API's /predict endpoint. It is meant to run on the device
// next to the camera, not on the server.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/KathiaMedinaRodriguez23/api-reciclaje/camera"
)

var serverURL = flag.StringP("server", "s", "http://localhost:8000", "Base URL of the recycling API")
var apiKey = flag.StringP("api-key", "k", "", "x-api-key header value (defaults to API_KEY env)")
var command = flag.StringP("command", "c", "", "Capture command emitting one JPEG on stdout (defaults to CAPTURE_COMMAND env)")
var interval = flag.DurationP("interval", "i", 10*time.Second, "Delay between captures")
var count = flag.IntP("count", "n", 1, "Number of frames to capture, 0 for unlimited")

func main() {
	err := godotenv.Load(".env", ".env.local")
	if err != nil {
		slog.Info("no dotenv", "err", err)
	}

	flag.Parse()

	if *apiKey == "" {
		*apiKey = os.Getenv("API_KEY")
	}
	if *command == "" {
		*command = os.Getenv("CAPTURE_COMMAND")
	}
	if *command == "" {
		log.Fatal("no capture command: pass --command or set CAPTURE_COMMAND")
	}

	cam, err := camera.New(*command)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	for sent := 0; *count == 0 || sent < *count; sent++ {
		if sent > 0 {
			time.Sleep(*interval)
		}

		frame, err := cam.Capture(ctx)
		if err != nil {
			slog.Error("capture failed", "err", err)
			continue
		}

		resp, err := post(ctx, frame)
		if err != nil {
			slog.Error("predict failed", "err", err)
			continue
		}
		slog.Info("frame classified", "response", resp, "bytes", len(frame))
	}
}

func post(ctx context.Context, frame []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="capture.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(frame); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *serverURL+"/predict", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if *apiKey != "" {
		req.Header.Set("x-api-key", *apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return string(respBody), nil
}
