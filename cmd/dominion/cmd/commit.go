package cmd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"dominion.gg/internal/sim/concealment"
	"dominion.gg/internal/sim/units"
)

func readFleet(cmd *cobra.Command, path string) (units.Fleet, error) {
	var f units.Fleet
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		fh, err := os.Open(path)
		if err != nil {
			return f, err
		}
		defer fh.Close()
		r = fh
	}
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return f, eris.Wrap(err, "decode fleet")
	}
	return f, nil
}

type commitment struct {
	Commitment concealment.Hash `json:"commitment"`
	Salt       concealment.Salt `json:"salt"`
}

func newCommitCmd() *cobra.Command {
	var fleetPath, saltHex string
	c := &cobra.Command{
		Use:   "commit",
		Short: "Commit to a fleet composition",
		Long: `Read a fleet as JSON and print its commitment hash with the salt used.
Keep the salt: the same fleet and salt are needed to reveal. Without --salt
a fresh salt is derived from random entropy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readFleet(cmd, fleetPath)
			if err != nil {
				return err
			}
			var salt concealment.Salt
			if saltHex != "" {
				if err := salt.UnmarshalText([]byte(saltHex)); err != nil {
					return eris.Wrap(err, "salt")
				}
			} else {
				id := uuid.New()
				salt = concealment.GenerateSalt(id[:])
			}
			h, err := concealment.Commit(f, salt)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), commitment{Commitment: h, Salt: salt})
		},
	}
	c.Flags().StringVar(&fleetPath, "fleet", "-", "fleet JSON file, - for stdin")
	c.Flags().StringVar(&saltHex, "salt", "", "hex salt to reuse")
	return c
}

func newVerifyCmd() *cobra.Command {
	var fleetPath, saltHex, hashHex string
	c := &cobra.Command{
		Use:   "verify",
		Short: "Check a fleet reveal against a commitment",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readFleet(cmd, fleetPath)
			if err != nil {
				return err
			}
			var salt concealment.Salt
			if err := salt.UnmarshalText([]byte(saltHex)); err != nil {
				return eris.Wrap(err, "salt")
			}
			var h concealment.Hash
			if err := h.UnmarshalText([]byte(hashHex)); err != nil {
				return eris.Wrap(err, "commitment")
			}
			ok, err := concealment.Verify(f, salt, h)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), map[string]bool{"valid": ok}); err != nil {
				return err
			}
			if !ok {
				return concealment.ErrHashMismatch
			}
			return nil
		},
	}
	c.Flags().StringVar(&fleetPath, "fleet", "-", "fleet JSON file, - for stdin")
	c.Flags().StringVar(&saltHex, "salt", "", "hex salt from commit")
	c.Flags().StringVar(&hashHex, "commitment", "", "hex commitment from commit")
	_ = c.MarkFlagRequired("salt")
	_ = c.MarkFlagRequired("commitment")
	return c
}
