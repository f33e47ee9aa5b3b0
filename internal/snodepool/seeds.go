package snodepool

// mainnetSeeds and testnetSeeds are the hard-coded seed-node JSON-RPC
// endpoints bootstrap_from_seeds chooses from uniformly at random.
var mainnetSeeds = []string{
	"https://storage.seed1.loki.network:4433/json_rpc",
	"https://storage.seed2.loki.network:4433/json_rpc",
	"https://storage.seed3.loki.network:4433/json_rpc",
	"https://public.loki.foundation:4433/json_rpc",
}

var testnetSeeds = []string{
	"https://storage.seed1.testnet.loki.network:4433/json_rpc",
	"https://storage.seed2.testnet.loki.network:4433/json_rpc",
}

// Seeds returns the seed URL list for the given network.
func Seeds(testnet bool) []string {
	if testnet {
		return testnetSeeds
	}
	return mainnetSeeds
}
