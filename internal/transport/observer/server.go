// Package observer serves read-only views of running chains to local tools.
package observer

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dominion.gg/internal/chains"
	"dominion.gg/internal/host"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/addressing"
)

type Server struct {
	mgr *host.Manager
	log zerolog.Logger
}

func NewServer(mgr *host.Manager, logger zerolog.Logger) *Server {
	return &Server{mgr: mgr, log: logger}
}

type chainView struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// ChainsHandler lists every running chain.
func (s *Server) ChainsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.admit(rw, r) {
			return
		}
		infos := s.mgr.Chains()
		out := make([]chainView, len(infos))
		for i, c := range infos {
			out[i] = chainView{ID: c.ID.String(), Kind: c.Kind}
		}
		writeJSON(rw, http.StatusOK, out)
	}
}

// StateHandler answers GET ?chain=<hex>[&view=digest] with the chain's STATE or DIGEST.
func (s *Server) StateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.admit(rw, r) {
			return
		}
		id, err := addressing.ParseChainID(r.URL.Query().Get("chain"))
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, protocol.Fail("", protocol.ErrBadRequest, err.Error()))
			return
		}
		op := protocol.Operation{Type: protocol.OpState}
		if r.URL.Query().Get("view") == "digest" {
			op.Type = protocol.OpDigest
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		data, err := s.mgr.Submit(ctx, id, op)
		if err != nil {
			code := chains.ErrorCode(err)
			status := http.StatusConflict
			switch code {
			case protocol.ErrUnknownChain:
				status = http.StatusNotFound
			case protocol.ErrInternal:
				s.log.Error().Err(err).Str("chain", id.Short()).Msg("observer read failed")
				status = http.StatusInternalServerError
			}
			writeJSON(rw, status, protocol.Fail("", code, err.Error()))
			return
		}
		writeJSON(rw, http.StatusOK, data)
	}
}

func (s *Server) admit(rw http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
