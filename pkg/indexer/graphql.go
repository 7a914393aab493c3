package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/certen/hyperbridge-core/pkg/codec"
)

// GraphQLClient is the stdlib net/http+json transport for IndexerClient, per SPEC_FULL.md
// §4.4/§6's justification for staying on the standard library here: the indexer's GraphQL
// schema is explicitly out of scope (§1), so there is no concrete contract for a
// generated/typed GraphQL client library to bind against — a plain POST-and-decode client
// is the right level of commitment for a replaceable transport. Retries with exponential
// backoff: RetryBase (default 1s), doubling, up to RetryMaxAttempts (default 3) tries.
type GraphQLClient struct {
	endpoint        string
	httpClient      *http.Client
	retryBase       time.Duration
	retryMaxAttempts int
	logger          *log.Logger
}

// NewGraphQLClient constructs a GraphQLClient against endpoint.
func NewGraphQLClient(endpoint string, retryBase time.Duration, retryMaxAttempts int, logger *log.Logger) *GraphQLClient {
	if retryMaxAttempts <= 0 {
		retryMaxAttempts = 3
	}
	if retryBase <= 0 {
		retryBase = time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[indexer] ", log.LstdFlags)
	}
	return &GraphQLClient{
		endpoint:         endpoint,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		retryBase:        retryBase,
		retryMaxAttempts: retryMaxAttempts,
		logger:           logger,
	}
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors,omitempty"`
}

// query POSTs query/variables and decodes the "data" field into out, retrying with
// exponential backoff after any failed attempt: transport errors, 4xx and 5xx statuses,
// undecodable bodies and GraphQL errors alike. Only a failure to decode the "data" field
// into out ends the loop early.
func (c *GraphQLClient) query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	reqBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("indexer: marshal query: %w", err)
	}

	var lastErr error
	delay := c.retryBase
	for attempt := 0; attempt < c.retryMaxAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Printf("🔄 indexer query retry %d/%d after %v: %v", attempt+1, c.retryMaxAttempts, delay, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		var resp graphqlResponse
		if err := c.doOnce(ctx, reqBody, &resp); err != nil {
			lastErr = err
			continue
		}
		if len(resp.Errors) > 0 {
			lastErr = fmt.Errorf("indexer: graphql error: %s", resp.Errors[0].Message)
			continue
		}
		if out != nil {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return fmt.Errorf("indexer: decode response data: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("indexer: query failed after %d attempts: %w", c.retryMaxAttempts, lastErr)
}

func (c *GraphQLClient) doOnce(ctx context.Context, body []byte, out *graphqlResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("indexer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("indexer: http request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return fmt.Errorf("indexer: server error status %d", httpResp.StatusCode)
	}
	if httpResp.StatusCode >= 400 {
		return fmt.Errorf("indexer: client error status %d", httpResp.StatusCode)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("indexer: decode response: %w", err)
	}
	return nil
}

const requestByCommitmentQuery = `
query($commitment: String!) {
	request(commitment: $commitment) {
		commitment source dest from to nonce body timeoutTimestamp
		statusEvents { status calldata height time }
		timeoutStatusEvents { status calldata height time }
	}
}`

func (c *GraphQLClient) RequestByCommitment(commitment []byte) (*RequestRecord, error) {
	var data struct {
		Request *wireRequestRecord `json:"request"`
	}
	if err := c.query(context.Background(), requestByCommitmentQuery, map[string]interface{}{
		"commitment": fmt.Sprintf("0x%x", commitment),
	}, &data); err != nil {
		return nil, err
	}
	if data.Request == nil {
		return nil, nil
	}
	return data.Request.toDomain(), nil
}

const getRequestByCommitmentQuery = `
query($commitment: String!) {
	getRequest(commitment: $commitment) {
		commitment
		statusEvents { status calldata height time }
	}
}`

func (c *GraphQLClient) GetRequestByCommitment(commitment []byte) (*GetRequestRecord, error) {
	var data struct {
		GetRequest *wireGetRequestRecord `json:"getRequest"`
	}
	if err := c.query(context.Background(), getRequestByCommitmentQuery, map[string]interface{}{
		"commitment": fmt.Sprintf("0x%x", commitment),
	}, &data); err != nil {
		return nil, err
	}
	if data.GetRequest == nil {
		return nil, nil
	}
	return data.GetRequest.toDomain(), nil
}

const orderByCommitmentQuery = `
query($commitment: String!) {
	order(commitment: $commitment) { id commitment source destination deadline cancelled }
}`

func (c *GraphQLClient) OrderByCommitment(commitment []byte) (*OrderRecord, error) {
	var data struct {
		Order *wireOrderRecord `json:"order"`
	}
	if err := c.query(context.Background(), orderByCommitmentQuery, map[string]interface{}{
		"commitment": fmt.Sprintf("0x%x", commitment),
	}, &data); err != nil {
		return nil, err
	}
	if data.Order == nil {
		return nil, nil
	}
	return data.Order.toDomain(), nil
}

const teleportByCommitmentQuery = `
query($commitment: String!) {
	teleport(commitment: $commitment) { commitment source dest delivered }
}`

func (c *GraphQLClient) TeleportByCommitment(commitment []byte) (*TeleportRecord, error) {
	var data struct {
		Teleport *wireTeleportRecord `json:"teleport"`
	}
	if err := c.query(context.Background(), teleportByCommitmentQuery, map[string]interface{}{
		"commitment": fmt.Sprintf("0x%x", commitment),
	}, &data); err != nil {
		return nil, err
	}
	if data.Teleport == nil {
		return nil, nil
	}
	return data.Teleport.toDomain(), nil
}

const stateMachineUpdatesQuery = `
query($stateMachine: String!, $afterHeight: Int!) {
	stateMachineUpdates(stateMachine: $stateMachine, afterHeight: $afterHeight) {
		stateMachine height updateTime
	}
}`

func (c *GraphQLClient) StateMachineUpdatesAfter(stateMachine codec.StateMachineId, afterHeight uint64) ([]StateMachineUpdateEvent, error) {
	var data struct {
		StateMachineUpdates []wireStateMachineUpdate `json:"stateMachineUpdates"`
	}
	if err := c.query(context.Background(), stateMachineUpdatesQuery, map[string]interface{}{
		"stateMachine": stateMachine.String(),
		"afterHeight":  afterHeight,
	}, &data); err != nil {
		return nil, err
	}

	out := make([]StateMachineUpdateEvent, 0, len(data.StateMachineUpdates))
	for _, u := range data.StateMachineUpdates {
		sm, err := codec.ParseStateMachineId(u.StateMachine)
		if err != nil {
			return nil, fmt.Errorf("indexer: parse state machine id %q: %w", u.StateMachine, err)
		}
		out = append(out, StateMachineUpdateEvent{StateMachine: sm, Height: u.Height, UpdateTime: u.UpdateTime})
	}
	return out, nil
}
