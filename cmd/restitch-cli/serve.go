package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/meklund/restitch/pkg/cache"
	"github.com/meklund/restitch/pkg/datatypes/responses"
	"github.com/meklund/restitch/pkg/engine"
	"github.com/meklund/restitch/pkg/profile"
	"github.com/meklund/restitch/pkg/provider"
	"github.com/meklund/restitch/pkg/record"
	"github.com/meklund/restitch/pkg/record/jsonl"
	"github.com/meklund/restitch/pkg/utils"
	"github.com/meklund/restitch/pkg/utils/delimiter"
)

// snapshotEvent names the SSE event carrying each reconstructed snapshot
// re-emitted to downstream clients.
const snapshotEvent = "response.snapshot"

func newServeCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start restitch-cli http server",
		Args:  cobra.NoArgs,
		PreRun: func(*cobra.Command, []string) {
			if configFile != "" {
				viper.SetConfigFile(configFile)
			}
			if err := viper.ReadInConfig(); err != nil {
				if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
					slog.Info(fmt.Sprintf("error reading config file: %s", err.Error()))
				}
				slog.Info("using default config")
			}
			viper.OnConfigChange(func(fsnotify.Event) {
				slog.Info("config file changed, reloading (profiles apply on restart)")
			})
			viper.WatchConfig()
			if viper.GetBool(delimiter.ViperKey("debug")) {
				slog.Info("using debug mode")
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
		},
		Run: serve,
	}
	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.restitch/config.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.Uint16P("port", "p", 2195, "port to serve on")
	flags.String("host", "127.0.0.1", "host to serve on")
	flags.String("base-url", "", "default upstream base url")
	flags.String("api-key", "", "default upstream api key")
	flags.Int("cache-size", 128, "finalized response cache size")
	flags.String("record", "", "stream record sink config")
	flags.Bool("pass-through", false, "relay upstream frames without reconstruction")
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("debug"), flags.Lookup("debug")))
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("http", "port"), flags.Lookup("port")))
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("http", "host"), flags.Lookup("host")))
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("upstream", "base_url"), flags.Lookup("base-url")))
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("upstream", "api_key"), flags.Lookup("api-key")))
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("cache_size"), flags.Lookup("cache-size")))
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("record"), flags.Lookup("record")))
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("options", "pass_through"), flags.Lookup("pass-through")))
	viper.SetOptions(viper.WithLogger(slog.Default()))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.restitch/")
	viper.AddConfigPath(".")
	return cmd
}

func serve(cmd *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sink, err := makeRecordSink(ctx, viper.GetString(delimiter.ViperKey("record")))
	if err != nil {
		cobra.CheckErr(fmt.Errorf("record: %w", err))
	}
	defer sink.Close()
	store, err := cache.NewLRU(viper.GetInt(delimiter.ViperKey("cache_size")))
	if err != nil {
		cobra.CheckErr(fmt.Errorf("cache: %w", err))
	}
	profiles := loadProfiles()
	prov := provider.NewProvider()
	router := chi.NewRouter()
	router.Get("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Post("/v1/responses", onCreateResponse(cmd, prov, store, sink, profiles))
	router.Get("/v1/responses/{responseID}", onGetResponse(prov, store, profiles))
	server := &http.Server{
		Addr:     fmt.Sprintf("%s:%d", viper.GetString(delimiter.ViperKey("http", "host")), viper.GetUint16(delimiter.ViperKey("http", "port"))),
		Handler:  router,
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	slog.Info(fmt.Sprintf("starting http server, listening on %s", server.Addr))
	go server.ListenAndServe()
	<-ctx.Done()
	slog.Info("receive shutdown signal, shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error(fmt.Sprintf("error shutting down http server: %s", err.Error()))
		os.Exit(2)
	} else {
		slog.Info("http server is shutdown gracefully")
	}
}

// loadProfiles reads routing profiles from the config; with none defined, a
// single catch-all profile is synthesized from the upstream flags.
func loadProfiles() *profile.ProfileManager {
	profiles, err := profile.LoadFromViper(viper.GetViper())
	if err != nil {
		if !errors.Is(err, profile.ErrNoProfilesDefined) {
			cobra.CheckErr(fmt.Errorf("profiles: %w", err))
		}
		profiles = profile.NewProfileManager()
		profiles.AddProfile(&profile.Profile{
			Name:   "default",
			Models: []string{"*"},
			Upstream: &profile.UpstreamConfig{
				BaseURL: profile.ExpandEnv(viper.GetString(delimiter.ViperKey("upstream", "base_url"))),
				APIKey:  profile.ExpandEnv(viper.GetString(delimiter.ViperKey("upstream", "api_key"))),
			},
			Options: &profile.OptionsConfig{
				PassThrough: viper.GetBool(delimiter.ViperKey("options", "pass_through")),
			},
		})
	}
	for _, p := range profiles.Profiles() {
		slog.Info(fmt.Sprintf("profile %q routes %v to %s", p.Name, p.Models, p.Upstream.GetBaseURL()))
	}
	return profiles
}

func onCreateResponse(
	cmd *cobra.Command,
	prov provider.Provider,
	store cache.Store,
	sink record.Sink,
	profiles *profile.ProfileManager,
) http.HandlerFunc {
	version := cmd.Parent().Version
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &record.StreamRecord{
			RequestTime: time.Now(),
			Version:     version,
			RequestID:   uuid.NewString(),
		}
		requestID := rec.RequestID
		defer func() {
			go func() {
				rec.FinishTime = time.Now()
				rec.RequestHeader = record.Header(r.Header)
				if err := sink.Record(rec); err != nil {
					slog.Warn(fmt.Sprintf("[%s] error recording stream: %s", requestID, err.Error()))
				}
			}()
		}()
		w.Header().Set("X-Restitch-Request-Id", requestID)
		defer func() {
			if err := recover(); err != nil {
				slog.Error(fmt.Sprintf("[%s] panic recovered: %v", requestID, err))
				slog.Debug(fmt.Sprintf("[%s] stack:\n%s", requestID, debug.Stack()))
				respondError(w,
					http.StatusInternalServerError,
					fmt.Sprintf("An error occured while processing your request: %v", err),
				)
				rec.StatusCode = http.StatusInternalServerError
			}
		}()
		if !utils.IsContentType(r.Header, "application/json") {
			respondError(w,
				http.StatusBadRequest,
				fmt.Sprintf("Invalid Content-Type %q", r.Header.Get("Content-Type")),
			)
			rec.StatusCode = http.StatusBadRequest
			return
		}
		rawBody, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w,
				http.StatusInternalServerError,
				fmt.Sprintf("Failed to read request body: %s", err.Error()),
			)
			rec.Error = &record.Error{Message: err.Error()}
			rec.StatusCode = http.StatusInternalServerError
			return
		}
		model := gjson.GetBytes(rawBody, "model").String()
		rec.Model = model
		slog.Info(fmt.Sprintf("[%s] request model: %s", requestID, model))
		prof, err := profiles.Match(model)
		if err != nil {
			respondError(w,
				http.StatusBadRequest,
				fmt.Sprintf("No upstream profile matches model %q", model),
			)
			rec.Error = &record.Error{Message: err.Error()}
			rec.StatusCode = http.StatusBadRequest
			return
		}
		rec.Profile = prof.Name
		clientStream := gjson.GetBytes(rawBody, "stream").Bool()
		// The upstream call always streams; reconstruction needs the events.
		// Fields the profile declares unsupported are stripped before
		// proxying.
		rewritten, err := sjson.SetBytes(rawBody, "stream", true)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("The request body is not valid JSON: %s", err.Error()))
			rec.Error = &record.Error{Message: err.Error()}
			rec.StatusCode = http.StatusBadRequest
			return
		}
		for _, field := range prof.Options.GetDropFields() {
			if newBody, err := sjson.DeleteBytes(rewritten, field); err == nil {
				rewritten = newBody
			} else {
				slog.Warn(fmt.Sprintf("[%s] error dropping field %q: %s", requestID, field, err.Error()))
			}
		}
		var req *responses.CreateModelResponseRequest
		if err = json.Unmarshal(rawBody, &req); err != nil {
			respondError(w,
				http.StatusBadRequest,
				fmt.Sprintf("The request body is not valid JSON: %s", err.Error()),
			)
			rec.Error = &record.Error{Message: err.Error()}
			rec.StatusCode = http.StatusBadRequest
			return
		}
		rec.Request = req
		ctx := profile.WithProfile(r.Context(), prof)
		frames, header, err := prov.CreateModelResponse(ctx, req, provider.ReplaceBody(rewritten))
		rec.ResponseHeader = record.Header(header)
		if err != nil {
			slog.Error(fmt.Sprintf("[%s] error making upstream /v1/responses request: %s", requestID, err.Error()))
			if providerError, isProviderError := provider.ParseError(err); isProviderError {
				respondError(w, providerError.StatusCode(), providerError.Message())
				rec.Error = &record.Error{
					Message: providerError.Message(),
					Type:    providerError.Type(),
					Source:  providerError.Source(),
				}
				rec.StatusCode = providerError.StatusCode()
			} else {
				respondError(w, http.StatusInternalServerError, err.Error())
				rec.Error = &record.Error{Message: err.Error()}
				rec.StatusCode = http.StatusInternalServerError
			}
			return
		}
		if prof.Options.GetPassThrough() && clientStream {
			w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			rec.StatusCode = http.StatusOK
			for frame, err := range frames {
				if err != nil {
					slog.Warn(fmt.Sprintf("[%s] error relaying upstream stream: %s", requestID, err.Error()))
					rec.Error = &record.Error{Message: err.Error()}
					return
				}
				if frame.Event != "" {
					fmt.Fprintf(w, "event: %s\n", frame.Event)
				}
				fmt.Fprintf(w, "data: %s\n\n", frame.Data)
				if flusher, isFlusher := w.(http.Flusher); isFlusher {
					flusher.Flush()
				}
			}
			return
		}
		collector := record.NewCollector(rec)
		eng := engine.New(engine.WithObserver(collector))
		if clientStream {
			w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			rec.StatusCode = http.StatusOK
		}
		var last *responses.Response
		for snapshot, err := range eng.Run(frames) {
			if err != nil {
				if clientStream {
					slog.Error(fmt.Sprintf("[%s] error transfering response stream: %s", requestID, err.Error()))
					fmt.Fprintf(w, "event: error\n")
					fmt.Fprintf(w, "data: %s\n\n", utils.JSONEncodeString(map[string]string{
						"type":    "error",
						"message": err.Error(),
					}))
				} else {
					respondError(w, http.StatusBadGateway, err.Error())
					rec.StatusCode = http.StatusBadGateway
				}
				rec.Error = &record.Error{Message: err.Error()}
				return
			}
			rec.Snapshots++
			last = snapshot
			if clientStream {
				fmt.Fprintf(w, "event: %s\n", snapshotEvent)
				fmt.Fprintf(w, "data: %s\n\n", utils.JSONEncodeString(snapshot))
				if flusher, isFlusher := w.(http.Flusher); isFlusher {
					flusher.Flush()
				}
			}
		}
		final := collector.Final()
		if final == nil {
			final = last
		}
		if final != nil && final.ID != "" && !prof.Options.GetDisableCache() {
			store.Store(final.ID, final)
		}
		if !clientStream {
			if final == nil {
				respondError(w, http.StatusBadGateway, "upstream produced no response")
				rec.StatusCode = http.StatusBadGateway
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			rec.StatusCode = http.StatusOK
			if err := json.NewEncoder(w).Encode(final); err != nil {
				slog.Warn(fmt.Sprintf("[%s] error sending non-stream response: %s", requestID, err.Error()))
				rec.Error = &record.Error{Message: err.Error()}
			}
		}
		slog.Info(fmt.Sprintf("[%s] snapshots: %d, skipped frames: %d, violations: %d",
			requestID, rec.Snapshots, rec.SkippedFrames, len(rec.Violations)))
		if final != nil && final.Usage != nil {
			slog.Info(fmt.Sprintf("[%s] final tokens usage: input=%d, output=%d",
				requestID, final.Usage.InputTokens, final.Usage.OutputTokens))
		}
	}
}

func onGetResponse(
	prov provider.Provider,
	store cache.Store,
	profiles *profile.ProfileManager,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responseID := chi.URLParam(r, "responseID")
		if resp, ok := store.Retrieve(responseID); ok {
			w.Header().Set("X-Restitch-Cache", "hit")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
			return
		}
		prof, err := profiles.Match(r.URL.Query().Get("model"))
		if err != nil {
			respondError(w, http.StatusNotFound, fmt.Sprintf("Response %q is not cached and no upstream profile matches", responseID))
			return
		}
		ctx := profile.WithProfile(r.Context(), prof)
		resp, err := prov.GetModelResponse(ctx, responseID)
		if err != nil {
			if providerError, isProviderError := provider.ParseError(err); isProviderError {
				respondError(w, providerError.StatusCode(), providerError.Message())
			} else {
				respondError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		if !prof.Options.GetDisableCache() {
			store.Store(responseID, resp)
		}
		w.Header().Set("X-Restitch-Cache", "miss")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	setRetryHeaders := func(secs int) {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		w.Header().Set("X-Should-Retry", "true")
	}
	var errorType string
	switch status {
	case http.StatusBadRequest:
		errorType = "invalid_request_error"
	case http.StatusUnauthorized:
		errorType = "authentication_error"
	case http.StatusForbidden:
		errorType = "permission_error"
	case http.StatusNotFound:
		errorType = "not_found_error"
	case http.StatusTooManyRequests:
		setRetryHeaders(60)
		errorType = "rate_limit_error"
	case http.StatusInternalServerError, http.StatusBadGateway:
		setRetryHeaders(1)
		errorType = "api_error"
	default:
		errorType = "api_error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"type":    errorType,
			"message": message,
		},
	}); err != nil {
		slog.Warn(fmt.Sprintf("[%s] error sending error response: %s", w.Header().Get("X-Restitch-Request-Id"), err.Error()))
	}
}

func makeRecordSink(ctx context.Context, cfg string) (record.Sink, error) {
	if cfg == "" {
		return record.NopSink(), nil
	}
	u, err := url.Parse(cfg)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "jsonl":
		var path string
		if u.Opaque != "" {
			path = u.Opaque
		} else {
			path = u.Path
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		return jsonl.NewSink(ctx, file), nil
	default:
		return nil, fmt.Errorf("unsupported record sink type %q", u.Scheme)
	}
}
