// Package preset provides ready-made crawl configurations for well-known
// programs.
package preset

import (
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/emperorhan/solana-tx-crawler/internal/crawler"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/filter"
)

var (
	CandyMachineV1ProgramID = solana.MustPublicKeyFromBase58("cndyAnrLdpjq1Ssp1z8xxDsB8dxe7u4HL5Nxi2K5WXZ")
	CandyMachineV2ProgramID = solana.MustPublicKeyFromBase58("cndy3Z4yapfJBmL3ShUp5exZKqR3z33thTzeNMm2gRZ")
)

// BotTaxLog appears in the logs of Candy Machine v2 mints that succeeded
// but were charged the bot tax instead of minting.
const BotTaxLog = "Candy Machine Botting is taxed"

const (
	LabelMetadata = "metadata"
	LabelMint     = "mint"
)

// Preset builds a crawl for a target account.
type Preset struct {
	Name        string
	Description string
	Builder     func(target model.Address) crawler.Builder
}

var registry = map[string]Preset{
	"candy-machine-v1": {
		Name:        "candy-machine-v1",
		Description: "mint and metadata accounts created by a Candy Machine v1 mintNft",
		Builder:     CandyMachineV1,
	},
	"candy-machine-v2": {
		Name:        "candy-machine-v2",
		Description: "mint and metadata accounts created by a Candy Machine v2 mintNft, bot-taxed mints excluded",
		Builder:     CandyMachineV2,
	},
}

// Lookup returns the preset registered under name.
func Lookup(name string) (Preset, bool) {
	p, ok := registry[name]
	return p, ok
}

// All returns every preset sorted by name.
func All() []Preset {
	out := make([]Preset, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CandyMachineV1 crawls a v1 candy machine's history for mintNft calls. The
// v1 instruction always carries 14 accounts with the candy machine at
// position 1.
func CandyMachineV1(candyMachine model.Address) crawler.Builder {
	return crawler.NewBuilder(candyMachine).
		AddTxFilter(filter.HasProgramID(CandyMachineV1ProgramID)).
		AddTxFilter(filter.SuccessOnly()).
		AddIxFilter(filter.ProgramID(CandyMachineV1ProgramID)).
		AddIxFilter(filter.AccountCount(filter.CountEq, 14)).
		AddIxFilter(filter.AccountAt(1, candyMachine)).
		AddExtraction(LabelMetadata, 4).
		AddExtraction(LabelMint, 5).
		Dedupe(true)
}

// CandyMachineV2 crawls a v2 candy machine's history for mintNft calls. The
// v2 instruction has at least 16 accounts, more when extra settings are
// enabled.
func CandyMachineV2(candyMachine model.Address) crawler.Builder {
	return crawler.NewBuilder(candyMachine).
		AddTxFilter(filter.HasProgramID(CandyMachineV2ProgramID)).
		AddTxFilter(filter.SuccessOnly()).
		AddTxFilter(filter.LogExcludes(BotTaxLog)).
		AddIxFilter(filter.ProgramID(CandyMachineV2ProgramID)).
		AddIxFilter(filter.AccountCount(filter.CountGte, 16)).
		AddExtraction(LabelMetadata, 4).
		AddExtraction(LabelMint, 5).
		Dedupe(true)
}
