package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/concordlab/concord"
	"github.com/concordlab/concord/broadcast"
	"github.com/concordlab/concord/engine"
	"github.com/concordlab/concord/internal/profiling"
	"github.com/concordlab/concord/modules"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a local consensus simulation.",
	Long: `Run a simulated group of agents voting on generated proposals.
Each agent subscribes to proposal broadcasts and votes according to the
configured approval and abstention rates. When the simulation finishes, the
aggregated statistics are printed as JSON.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSimulation()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("agents", 7, "number of simulated agents")
	runCmd.Flags().Int("proposals", 10, "number of proposals to submit")
	runCmd.Flags().Duration("vote-timeout", 10*time.Second, "voting timeout per proposal")
	runCmd.Flags().Float64("approve-rate", 0.8, "probability that an agent approves")
	runCmd.Flags().Float64("abstain-rate", 0.05, "probability that an agent abstains")
	runCmd.Flags().Int64("seed", 0, "random seed (0 uses the current time)")
	runCmd.Flags().String("export", "", "write a state snapshot to this file when done")

	runCmd.Flags().String("cpu-profile", "", "file to save the cpu profile to")
	runCmd.Flags().String("mem-profile", "", "file to save the memory profile to")
	runCmd.Flags().String("trace", "", "file to save the execution trace to")
	runCmd.Flags().String("fgprof-profile", "", "file to save the fgprof profile to")

	cobra.CheckErr(viper.BindPFlags(runCmd.Flags()))
}

func runSimulation() {
	stopProfilers, err := profiling.StartProfilers(
		viper.GetString("cpu-profile"),
		viper.GetString("mem-profile"),
		viper.GetString("trace"),
		viper.GetString("fgprof-profile"),
	)
	checkf("failed to start profilers: %v", err)
	defer func() {
		checkf("failed to stop profilers: %v", stopProfilers())
	}()

	var (
		numAgents    = viper.GetInt("agents")
		numProposals = viper.GetInt("proposals")
		voteTimeout  = viper.GetDuration("vote-timeout")
		approveRate  = viper.GetFloat64("approve-rate")
		abstainRate  = viper.GetFloat64("abstain-rate")
		seed         = viper.GetInt64("seed")
	)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var mut sync.Mutex
	rng := rand.New(rand.NewSource(seed))
	random := func(fn func(rng *rand.Rand)) {
		mut.Lock()
		defer mut.Unlock()
		fn(rng)
	}

	transport := broadcast.NewLocal(1000, 64)
	eng := engine.New(
		engine.WithBroadcaster(transport),
		engine.WithOptions(func(opts *modules.Options) {
			opts.SetDefaultTimeout(voteTimeout)
		}),
	)

	agents := make([]concord.AgentID, numAgents)
	for i := range agents {
		id := concord.AgentID(fmt.Sprintf("agent-%d", i+1))
		agents[i] = id

		var weight float64
		random(func(rng *rand.Rand) { weight = 0.5 + 1.5*rng.Float64() })
		eng.RegisterParticipant(id, weight)

		transport.Subscribe(id, func(p concord.Proposal) {
			var (
				decision   concord.Decision
				confidence float64
			)
			random(func(rng *rand.Rand) {
				switch roll := rng.Float64(); {
				case roll < abstainRate:
					decision = concord.Abstain
				case roll < abstainRate+approveRate:
					decision = concord.Approve
				default:
					decision = concord.Reject
				}
				confidence = 0.5 + 0.5*rng.Float64()
			})
			if err := eng.CastVote(id, p.ID, decision, confidence, "simulated"); err != nil {
				log.Printf("%s could not vote on %s: %v", id, p.ID, err)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)

	for i := 0; i < numProposals; i++ {
		var proposer concord.AgentID
		random(func(rng *rand.Rand) { proposer = agents[rng.Intn(len(agents))] })

		proposalType, payload := generatedPayload(i)
		_, err := eng.CreateProposal(proposer, proposalType,
			fmt.Sprintf("simulated proposal %d", i+1), "generated by concord run",
			payload, engine.CreateOptions{})
		if err != nil {
			log.Printf("could not create proposal: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// give in-flight votes and executions time to settle
	time.Sleep(500 * time.Millisecond)
	eng.Stop()

	if path := viper.GetString("export"); path != "" {
		snapshot, err := eng.Export()
		checkf("failed to export snapshot: %v", err)
		checkf("failed to write snapshot: %v", os.WriteFile(path, snapshot, 0o644))
	}

	stats, err := json.MarshalIndent(eng.Stats(), "", "  ")
	checkf("failed to marshal statistics: %v", err)
	fmt.Println(string(stats))
}

// generatedPayload cycles through the payload kinds so every executor path
// gets exercised.
func generatedPayload(i int) (concord.ProposalType, concord.Payload) {
	switch i % 4 {
	case 0:
		return concord.MemoryUpdateProposal, concord.MemoryUpdate{
			Scope: "shared",
			Key:   fmt.Sprintf("key-%d", i),
			Value: fmt.Sprintf("value-%d", i),
		}
	case 1:
		return concord.PolicyChangeProposal, concord.PolicyChange{
			PolicyID: fmt.Sprintf("policy-%d", i),
			Rules:    map[string]any{"maxRetries": i},
		}
	case 2:
		return concord.ResourceAllocationProposal, concord.ResourceAllocation{
			Resource: "compute",
			Amount:   float64(i),
			Grantee:  concord.AgentID(fmt.Sprintf("agent-%d", i%3+1)),
		}
	default:
		return concord.AgentActionProposal, concord.ActionRequest{
			Action: "sync",
			Params: map[string]any{"round": i},
		}
	}
}

func checkf(format string, args ...any) {
	for _, arg := range args {
		if err, _ := arg.(error); err != nil {
			log.Fatalf(format, args...)
		}
	}
}
