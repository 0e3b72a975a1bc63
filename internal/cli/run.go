package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/IAMD3/ykgen/internal/rpc"
	"github.com/IAMD3/ykgen/internal/rpc/connectjson"
	generaterpc "github.com/IAMD3/ykgen/internal/rpc/generate"
)

// NewRunCmd wires the run command to stream generation events from the
// daemon.
func NewRunCmd(opts *Options) *cobra.Command {
	var (
		style       string
		model       string
		loraMode    string
		maxScenes   int
		imagesPer   int
		enableVideo bool
		enableAudio bool
		seed        int64
		outputDir   string
	)

	cmd := &cobra.Command{
		Use:   "run \"<prompt>\"",
		Short: "Generate a story video from a prompt and stream progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			prompt := args[0]
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt cannot be empty")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sessionID := fmt.Sprintf("cli-%d", time.Now().UnixNano())

			reqBody := rpc.GenerateRequest{
				SessionID:     sessionID,
				CorrelationID: sessionID + "-corr",
				Prompt:        prompt,
				Style:         style,
				Model:         model,
				LoraMode:      loraMode,
				MaxScenes:     maxScenes,
				ImagesPer:     imagesPer,
				EnableVideo:   enableVideo,
				EnableAudio:   enableAudio,
				Seed:          seed,
				OutputDir:     outputDir,
			}

			baseURL := daemonURL(cfg.Server.Addr)
			switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
			case "ndjson":
				return runNDJSON(ctx, cmd, baseURL+"/generate", reqBody)
			default:
				return runConnect(ctx, cmd, baseURL+generaterpc.ConnectGenerateProcedure, reqBody)
			}
		},
	}

	cmd.Flags().StringVar(&style, "style", "", "Visual style hint for the story planner")
	cmd.Flags().StringVar(&model, "model", "", "Image model name (default: registry default)")
	cmd.Flags().StringVar(&loraMode, "lora-mode", "", "Adapter mode: all, group, or none")
	cmd.Flags().IntVar(&maxScenes, "max-scenes", 0, "Scene count limit for this run")
	cmd.Flags().IntVar(&imagesPer, "images-per-scene", 0, "Images rendered per scene")
	cmd.Flags().BoolVar(&enableVideo, "video", false, "Convert scene images to video clips")
	cmd.Flags().BoolVar(&enableAudio, "audio", false, "Generate a backing song")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Base seed for reproducible runs (0 = random)")
	cmd.Flags().StringVar(&outputDir, "output", "", "Output directory for this run")
	return cmd
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func runNDJSON(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.GenerateRequest) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var evt rpc.GenerateEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := renderEvent(cmd, evt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func runConnect(ctx context.Context, cmd *cobra.Command, url string, reqBody rpc.GenerateRequest) error {
	client := connect.NewClient[rpc.GenerateStreamRequest, rpc.GenerateEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.GenerateStreamRequest{Generate: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	go func() {
		<-ctx.Done()
		_ = stream.Send(&rpc.GenerateStreamRequest{Cancel: true, SessionID: reqBody.SessionID, CorrelationID: reqBody.CorrelationID})
		_ = stream.CloseRequest()
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := renderEvent(cmd, *evt); err != nil {
			return err
		}
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

func renderEvent(cmd *cobra.Command, evt rpc.GenerateEvent) error {
	out := cmd.OutOrStdout()
	switch evt.Type {
	case "warning":
		fmt.Fprintf(out, "[warn] %s\n", evt.Warning)
	case "scene":
		fmt.Fprintf(out, "[scene %d/%d] %s\n", evt.SceneIndex+1, evt.SceneCount, evt.Message)
	case "artifact":
		fmt.Fprintf(out, "[%s] %s\n", evt.Stage, evt.Path)
	case "stage":
		if evt.Message != "" {
			fmt.Fprintf(out, "[%s] %s\n", evt.Stage, evt.Message)
		}
		if len(evt.Adapters) > 0 {
			fmt.Fprintf(out, "[%s] adapters: %s\n", evt.Stage, strings.Join(evt.Adapters, ", "))
		}
	case "done":
		if evt.Path != "" {
			fmt.Fprintf(out, "[done] %s\n", evt.Path)
		} else {
			fmt.Fprintln(out, "[done]")
		}
	case "error":
		return fmt.Errorf("daemon error: %s", evt.Error)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
