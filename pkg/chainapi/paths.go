package chainapi

// Blockfrost paths
const (
	addressUTXOsPath   = "/addresses/%s/utxos"
	assetAddressesPath = "/assets/%s/addresses"
	policyAssetsPath   = "/assets/policy/%s"
	assetPath          = "/assets/%s"
)

// Koios paths
const (
	addressInfoPath = "/address_info"
)

// PageSize is the largest page Blockfrost serves.
const PageSize = 100
