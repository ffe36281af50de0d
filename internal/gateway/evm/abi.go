package evm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// marketABI is the application binary interface of the market contract. The
// snapshot call returns every window flag and balance in a single eth_call so
// all of them are evaluated against the same block timestamp.
const marketABI = `[
  {
    "name": "getSnapshot",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [
      {
        "name": "snap",
        "type": "tuple",
        "components": [
          {"name": "imageUri", "type": "string"},
          {"name": "startsAt", "type": "uint64"},
          {"name": "endsAt", "type": "uint64"},
          {"name": "daoAccount", "type": "address"},
          {"name": "marketCreator", "type": "address"},
          {"name": "selfDestructWindow", "type": "uint64"},
          {"name": "buySellThreshold", "type": "uint256"},
          {"name": "price", "type": "uint256"},
          {"name": "feeRatio", "type": "uint256"},
          {"name": "feesClaimedAt", "type": "uint64"},
          {"name": "collateralToken", "type": "address"},
          {"name": "collateralBalance", "type": "uint256"},
          {"name": "collateralDecimals", "type": "uint8"},
          {"name": "feeBalance", "type": "uint256"},
          {"name": "resolutionWindow", "type": "uint64"},
          {"name": "revealWindow", "type": "uint64"},
          {"name": "resolvedAt", "type": "uint64"},
          {"name": "winner", "type": "address"},
          {"name": "playersCount", "type": "uint256"},
          {"name": "isBeforeMarketEnds", "type": "bool"},
          {"name": "isResolved", "type": "bool"},
          {"name": "isRevealWindowExpired", "type": "bool"},
          {"name": "isResolutionWindowExpired", "type": "bool"},
          {"name": "isExpiredUnresolved", "type": "bool"},
          {"name": "isSelfDestructWindowExpired", "type": "bool"},
          {"name": "blockTimestamp", "type": "uint64"}
        ]
      }
    ]
  },
  {
    "name": "getPlayer",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "player", "type": "address"}],
    "outputs": [
      {
        "name": "entry",
        "type": "tuple",
        "components": [
          {"name": "prompt", "type": "string"},
          {"name": "outputImgUri", "type": "string"},
          {"name": "result", "type": "string"},
          {"name": "balance", "type": "uint256"},
          {"name": "claimed", "type": "bool"},
          {"name": "registeredAt", "type": "uint64"}
        ]
      }
    ]
  },
  {
    "name": "getPlayersCount",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "name": "register",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "player", "type": "address"},
      {"name": "prompt", "type": "string"},
      {"name": "amount", "type": "uint256"}
    ],
    "outputs": []
  },
  {
    "name": "revealResult",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "player", "type": "address"},
      {"name": "result", "type": "string"},
      {"name": "outputImgUri", "type": "string"}
    ],
    "outputs": []
  },
  {
    "name": "resolution",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "player", "type": "address"}],
    "outputs": []
  },
  {
    "name": "sell",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "player", "type": "address"}],
    "outputs": [{"name": "amount", "type": "uint256"}]
  }
]`

// factoryABI is the interface of the market factory, used to enumerate the
// markets a deployment has created.
const factoryABI = `[
  {
    "name": "getMarketsCount",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "name": "getMarketsList",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      {"name": "offset", "type": "uint256"},
      {"name": "limit", "type": "uint256"}
    ],
    "outputs": [{"name": "", "type": "address[]"}]
  }
]`

// snapshotTuple mirrors the getSnapshot return struct for ABI unpacking.
type snapshotTuple struct {
	ImageUri                    string
	StartsAt                    uint64
	EndsAt                      uint64
	DaoAccount                  common.Address
	MarketCreator               common.Address
	SelfDestructWindow          uint64
	BuySellThreshold            *big.Int
	Price                       *big.Int
	FeeRatio                    *big.Int
	FeesClaimedAt               uint64
	CollateralToken             common.Address
	CollateralBalance           *big.Int
	CollateralDecimals          uint8
	FeeBalance                  *big.Int
	ResolutionWindow            uint64
	RevealWindow                uint64
	ResolvedAt                  uint64
	Winner                      common.Address
	PlayersCount                *big.Int
	IsBeforeMarketEnds          bool
	IsResolved                  bool
	IsRevealWindowExpired       bool
	IsResolutionWindowExpired   bool
	IsExpiredUnresolved         bool
	IsSelfDestructWindowExpired bool
	BlockTimestamp              uint64
}

// playerTuple mirrors the getPlayer return struct for ABI unpacking.
type playerTuple struct {
	Prompt       string
	OutputImgUri string
	Result       string
	Balance      *big.Int
	Claimed      bool
	RegisteredAt uint64
}
