// Package transport provides the HTTP inspection API for contracts created by
// the sandbox deployment factory.
package transport

import (
	"time"

	"github.com/pendergraft/deploycheck/internal/sandbox"
)

// DeploymentListResponse is the response for listing deployments.
type DeploymentListResponse struct {
	Data       []DeploymentResponse `json:"data"`
	Pagination Pagination           `json:"pagination"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// DeploymentResponse is a single factory deployment.
type DeploymentResponse struct {
	Address      string `json:"address"`
	Factory      string `json:"factory"`
	Deployer     string `json:"deployer"`
	GuardedSalt  string `json:"guardedSalt"`
	InitCodeHash string `json:"initCodeHash"`
	TxHash       string `json:"txHash"`
	BlockNumber  uint64 `json:"blockNumber"`
	CreatedAt    string `json:"createdAt"`
}

// FromDomain converts a sandbox deployment to its HTTP representation.
func FromDomain(d sandbox.Deployment) DeploymentResponse {
	return DeploymentResponse{
		Address:      d.Address.Hex(),
		Factory:      d.Factory.Hex(),
		Deployer:     d.Deployer.Hex(),
		GuardedSalt:  d.GuardedSalt.Hex(),
		InitCodeHash: d.InitCodeHash.Hex(),
		TxHash:       d.TxHash.Hex(),
		BlockNumber:  d.BlockNumber,
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// AccountsResponse lists the sandbox's unlocked accounts in node order.
type AccountsResponse struct {
	ChainID  int64    `json:"chainId"`
	Factory  string   `json:"factory"`
	Accounts []string `json:"accounts"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
