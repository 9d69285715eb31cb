// Command test-client drives a running server through a full driver session.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Ammarmeer/drowsiness/internal/handlers"
)

type client struct {
	base string
	http *http.Client
}

type reply struct {
	Success bool            `json:"success"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`

	UserID      int64  `json:"user_id"`
	SessionID   int64  `json:"session_id"`
	AccessToken string `json:"access_token"`
	User        struct {
		ID int64 `json:"id"`
	} `json:"user"`
}

func (c *client) do(req *http.Request) (*reply, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var r reply
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, body)
	}
	if resp.StatusCode != http.StatusOK || !r.Success {
		return &r, fmt.Errorf("status %d: %s", resp.StatusCode, r.Detail)
	}
	return &r, nil
}

func (c *client) postJSON(path string, v any) (*reply, error) {
	payload, _ := json.Marshal(v)
	req, _ := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) get(path, token string) (*reply, error) {
	req, _ := http.NewRequest(http.MethodGet, c.base+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req)
}

func (c *client) upload(path string, frame []byte) (*reply, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, _ := w.CreateFormFile("file", "frame.jpg")
	part.Write(frame)
	w.WriteField("latitude", "41.31")
	w.WriteField("longitude", "69.24")
	w.Close()

	req, _ := http.NewRequest(http.MethodPost, c.base+path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "HTTP base URL")
	grpcAddr := flag.String("grpc", "localhost:50051", "gRPC address, empty to skip")
	adminUser := flag.String("admin-user", "admin", "admin username")
	adminPass := flag.String("admin-pass", "admin123", "admin password")
	flag.Parse()

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("DrowsyGuard smoke test against", *baseURL)
	fmt.Println(strings.Repeat("=", 60))

	frame, err := generateTestImage()
	if err != nil {
		log.Fatalf("generate test image: %v", err)
	}
	fmt.Printf("✓ Generated test image: %d bytes\n", len(frame))

	c := &client{base: strings.TrimRight(*baseURL, "/"), http: &http.Client{Timeout: 15 * time.Second}}
	name := "driver-" + uuid.NewString()[:8]
	password := "Test123456"

	step := func(label string, fn func() error) {
		fmt.Printf("\n[TEST] %s...\n", label)
		if err := fn(); err != nil {
			log.Printf("❌ %s failed: %v", label, err)
			os.Exit(1)
		}
	}

	step("health", func() error {
		resp, err := c.http.Get(c.base + "/healthz")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		fmt.Printf("✓ %s\n", body)
		return nil
	})

	var userID, sessionID int64
	step("register", func() error {
		r, err := c.postJSON("/users/register", map[string]string{
			"username": name, "email": name + "@example.com", "password": password,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Registered %s as user %d\n", name, r.UserID)
		return nil
	})

	step("login", func() error {
		r, err := c.postJSON("/users/login", map[string]string{
			"username": name, "password": password, "role": "driver",
		})
		if err != nil {
			return err
		}
		userID = r.User.ID
		fmt.Printf("✓ Logged in, token %d bytes\n", len(r.AccessToken))
		return nil
	})

	step("start session", func() error {
		r, err := c.postJSON("/sessions/start", map[string]any{
			"user_id": userID, "latitude": 41.31, "longitude": 69.24,
		})
		if err != nil {
			return err
		}
		sessionID = r.SessionID
		fmt.Printf("✓ Session %d started\n", sessionID)
		return nil
	})

	step("detect", func() error {
		for i := 0; i < 3; i++ {
			r, err := c.upload(fmt.Sprintf("/detect/%d", sessionID), frame)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Frame %d: %s\n", i+1, r.Data)
		}
		return nil
	})

	step("end session", func() error {
		_, err := c.postJSON(fmt.Sprintf("/sessions/%d/end", sessionID), map[string]any{"distance_km": 12.5})
		if err != nil {
			return err
		}
		fmt.Println("✓ Session ended")
		return nil
	})

	step("driver dashboard", func() error {
		r, err := c.get(fmt.Sprintf("/users/%d/dashboard", userID), "")
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", r.Data)
		return nil
	})

	step("admin dashboard", func() error {
		login, err := c.postJSON("/users/login", map[string]string{
			"username": *adminUser, "password": *adminPass, "role": "admin",
		})
		if err != nil {
			return err
		}
		r, err := c.get("/admin/dashboard", login.AccessToken)
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s\n", r.Data)
		return nil
	})

	if *grpcAddr != "" {
		step("gRPC PredictFrame", func() error { return predictOverGRPC(*grpcAddr, frame) })
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("✅ All tests completed successfully!")
	fmt.Println(strings.Repeat("=", 60))
}

func predictOverGRPC(addr string, frame []byte) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, handlers.PredictFrameMethod, wrapperspb.Bytes(frame), out); err != nil {
		return err
	}
	fields := out.GetFields()
	fmt.Printf("✓ prediction=%s confidence=%.4f\n", fields["prediction"].GetStringValue(), fields["confidence"].GetNumberValue())
	return nil
}

// generateTestImage renders a gradient JPEG in memory.
func generateTestImage() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 224, 224))
	for y := 0; y < 224; y++ {
		for x := 0; x < 224; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
