package chains

import (
	"errors"

	"github.com/rotisserie/eris"

	"dominion.gg/internal/host"
	"dominion.gg/internal/protocol"
	"dominion.gg/internal/sim/battle"
	"dominion.gg/internal/sim/concealment"
	"dominion.gg/internal/sim/region"
)

var (
	ErrBadBody          = eris.New("malformed body")
	ErrUnknownOp        = eris.New("unknown operation")
	ErrUnknownMsg       = eris.New("unknown message kind")
	ErrWrongChain       = eris.New("operation addressed to the wrong chain")
	ErrUntrusted        = eris.New("message from unexpected sender")
	ErrMisdelivered     = eris.New("message not meant for this chain")
	ErrSubShardByParent = eris.New("sub-shard regions are opened by subdividing the parent")
)

var codeTable = []struct {
	code string
	errs []error
}{
	{protocol.ErrBadRequest, []error{
		ErrBadBody, ErrUnknownOp, ErrWrongChain,
		battle.ErrUnknownCommand, region.ErrOutOfBounds, region.ErrInvalidTarget, region.ErrInsufficientStake,
		region.ErrInvalidSubShard,
	}},
	{protocol.ErrUnknownChain, []error{host.ErrUnknownChain}},
	{protocol.ErrNotActive, []error{
		battle.ErrBattleNotActive, battle.ErrNotInstantiated, battle.ErrBattleStillActive, region.ErrNotInstantiated,
	}},
	{protocol.ErrTimeoutNotReached, []error{battle.ErrTimeoutNotReached}},
	{protocol.ErrInvalidReveal, []error{region.ErrInvalidReveal, concealment.ErrHashMismatch}},
	{protocol.ErrNotFound, []error{
		region.ErrFleetNotFound, region.ErrPlanetNotFound, region.ErrDebrisNotFound, region.ErrBattleNotFound,
	}},
	{protocol.ErrConflict, []error{
		battle.ErrAlreadyInstantiated, battle.ErrCommandSubmitted,
		region.ErrAlreadyInstantiated, region.ErrFleetPresent, region.ErrFleetAlreadyRevealed, region.ErrFleetNotRevealed,
		region.ErrBattleInProgress, region.ErrBattleResolved, region.ErrPlanetAlreadyClaimed,
		region.ErrShardSubdivided, region.ErrCannotSubdivide, host.ErrKindMismatch,
	}},
	{protocol.ErrForbidden, []error{
		battle.ErrNotCombatant, battle.ErrCannotRetreatYet, region.ErrNotPlanetOwner, ErrUntrusted, ErrMisdelivered,
		ErrSubShardByParent,
	}},
	{protocol.ErrCapacity, []error{region.ErrShardFull}},
}

// ErrorCode maps an execution error to its protocol error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, row := range codeTable {
		for _, target := range row.errs {
			if errors.Is(err, target) {
				return row.code
			}
		}
	}
	return protocol.ErrInternal
}
