package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"dominion.gg/internal/chains"
	"dominion.gg/internal/host"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
	"dominion.gg/internal/sim/region"
)

const (
	idleTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
)

type Config struct {
	Seed            addressing.Seed
	RatePerSec      float64
	RateBurst       int
	MaxMessageBytes int64
	SubmitTimeout   time.Duration
}

type Server struct {
	mgr     *host.Manager
	schemas *protocol.Schemas
	cfg     Config
	log     zerolog.Logger

	upgrader websocket.Upgrader
}

func NewServer(mgr *host.Manager, schemas *protocol.Schemas, cfg Config, logger zerolog.Logger) *Server {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	return &Server{
		mgr:     mgr,
		schemas: schemas,
		cfg:     cfg,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) limiter() *rate.Limiter {
	if s.cfg.RatePerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := s.cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.cfg.RatePerSec), burst)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if s.cfg.MaxMessageBytes > 0 {
			conn.SetReadLimit(s.cfg.MaxMessageBytes)
		}

		log := s.log.With().Str("session", uuid.NewString()).Str("remote", r.RemoteAddr).Logger()
		log.Debug().Msg("client connected")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, 64)
		writerDone := make(chan struct{})

		// Writer goroutine.
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Requests on one connection execute in arrival order.
		lim := s.limiter()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			resp := s.handle(ctx, lim, msg, log)
			b, err := json.Marshal(resp)
			if err != nil {
				log.Error().Err(err).Str("request_id", resp.RequestID).Msg("encode response")
				b, _ = json.Marshal(protocol.Fail(resp.RequestID, protocol.ErrInternal, "unencodable result"))
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writerDone:
		case <-time.After(500 * time.Millisecond):
		}
		log.Debug().Msg("client disconnected")
	}
}

func (s *Server) handle(ctx context.Context, lim *rate.Limiter, raw []byte, log zerolog.Logger) protocol.OpResponse {
	if !lim.Allow() {
		return protocol.Fail(peekRequestID(raw), protocol.ErrRateLimit, "rate limit exceeded")
	}
	req, err := s.schemas.DecodeRequest(raw)
	if err != nil {
		return protocol.Fail(peekRequestID(raw), protocol.ErrBadRequest, err.Error())
	}
	if req.ProtocolVersion != protocol.Version {
		return protocol.Fail(req.RequestID, protocol.ErrBadRequest, "unsupported protocol_version "+req.ProtocolVersion)
	}

	data, err := s.Execute(ctx, req)
	if err != nil {
		code := chains.ErrorCode(err)
		msg := err.Error()
		if code == protocol.ErrInternal {
			log.Error().Err(err).Str("op", req.Op.Type).Str("request_id", req.RequestID).Msg("operation failed")
			msg = "internal error"
		} else {
			log.Debug().Err(err).Str("op", req.Op.Type).Str("code", code).Msg("operation rejected")
		}
		return protocol.Fail(req.RequestID, code, msg)
	}
	return protocol.OK(req.RequestID, data)
}

// Execute runs one decoded request. OPEN_REGION derives its target chain
// from the body and starts it when needed; everything else names its chain.
func (s *Server) Execute(ctx context.Context, req protocol.OpRequest) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	var id addressing.ChainID
	if req.Op.Type == protocol.OpOpenRegion {
		b, err := protocol.DecodeBody[protocol.OpenRegionBody](req.Op.Body)
		if err != nil {
			return nil, eris.Wrap(chains.ErrBadBody, err.Error())
		}
		if b.Sub != nil {
			return nil, eris.Wrapf(chains.ErrSubShardByParent, "%s", b.Sub)
		}
		id = region.Config{Shard: b.Shard, Seed: s.cfg.Seed}.ChainID()
		if _, err := s.mgr.Open(ctx, id, chains.KindRegion); err != nil {
			return nil, err
		}
	} else {
		var err error
		if id, err = addressing.ParseChainID(req.ChainID); err != nil {
			return nil, eris.Wrap(chains.ErrBadBody, err.Error())
		}
	}
	return s.mgr.Submit(ctx, id, req.Op)
}

func peekRequestID(raw []byte) string {
	var v struct {
		RequestID string `json:"request_id"`
	}
	_ = json.Unmarshal(raw, &v)
	return v.RequestID
}
