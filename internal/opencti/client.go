package opencti

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tdr0/connectors/internal/retry"
	"log/slog"
)

// Client talks to the OpenCTI GraphQL API on behalf of one registered
// connector.
type Client struct {
	graphqlURL  string
	token       string
	connectorID string
	name        string
	connType    string
	scope       string
	http        *http.Client
	logger      *slog.Logger
	policy      retry.Policy
}

// NewClient constructs a platform client for the given connector identity.
func NewClient(baseURL, token, connectorID, name, connType, scope string, logger *slog.Logger) *Client {
	return &Client{
		graphqlURL:  strings.TrimRight(baseURL, "/") + "/graphql",
		token:       token,
		connectorID: connectorID,
		name:        name,
		connType:    connType,
		scope:       scope,
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		policy:      retry.DefaultPolicy(),
	}
}

// ConnectorID returns the registered connector identifier.
func (c *Client) ConnectorID() string {
	return c.connectorID
}

// BrokerConfig is the ingest broker wiring the platform hands out at
// registration time.
type BrokerConfig struct {
	Connection struct {
		Host   string `json:"host"`
		Port   int    `json:"port"`
		UseSSL bool   `json:"use_ssl"`
		User   string `json:"user"`
		Pass   string `json:"pass"`
		Vhost  string `json:"vhost"`
	} `json:"connection"`
	Push         string `json:"push"`
	PushExchange string `json:"push_exchange"`
	PushRouting  string `json:"push_routing"`
}

// URI builds the AMQP connection URI.
func (b BrokerConfig) URI() string {
	scheme := "amqp"
	if b.Connection.UseSSL {
		scheme = "amqps"
	}
	vhost := b.Connection.Vhost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s",
		scheme,
		url.QueryEscape(b.Connection.User),
		url.QueryEscape(b.Connection.Pass),
		b.Connection.Host,
		b.Connection.Port,
		url.PathEscape(vhost),
	)
}

// RoutingKey returns the routing key for bundle pushes, falling back to the
// push queue name for older platform versions.
func (b BrokerConfig) RoutingKey() string {
	if b.PushRouting != "" {
		return b.PushRouting
	}
	return b.Push
}

// Registration is the platform's answer to connector registration.
type Registration struct {
	ID     string
	State  State
	Broker BrokerConfig
}

const registerMutation = `
mutation RegisterConnector($input: RegisterConnectorInput) {
	registerConnector(input: $input) {
		id
		connector_state
		config {
			connection { host port use_ssl user pass vhost }
			push
			push_exchange
			push_routing
		}
	}
}`

// RegisterConnector announces this connector to the platform and returns the
// stored state plus the broker configuration for bundle pushes.
func (c *Client) RegisterConnector(ctx context.Context) (*Registration, error) {
	variables := map[string]any{
		"input": map[string]any{
			"id":              c.connectorID,
			"name":            c.name,
			"type":            c.connType,
			"scope":           []string{c.scope},
			"auto":            false,
			"only_contextual": false,
		},
	}

	var resp struct {
		RegisterConnector struct {
			ID             string       `json:"id"`
			ConnectorState string       `json:"connector_state"`
			Config         BrokerConfig `json:"config"`
		} `json:"registerConnector"`
	}

	if err := c.execute(ctx, registerMutation, variables, &resp); err != nil {
		return nil, fmt.Errorf("register connector: %w", err)
	}

	state, err := ParseState(resp.RegisterConnector.ConnectorState)
	if err != nil {
		c.logger.Warn("discarding unparseable connector state",
			"state", resp.RegisterConnector.ConnectorState,
			"error", err,
		)
		state = State{}
	}

	c.logger.Info("connector registered",
		"connector_id", resp.RegisterConnector.ID,
		"push_queue", resp.RegisterConnector.Config.Push,
	)

	return &Registration{
		ID:     resp.RegisterConnector.ID,
		State:  state,
		Broker: resp.RegisterConnector.Config,
	}, nil
}

const stateUpdateMutation = `
mutation ConnectorStateUpdate($id: ID!, $state: String!) {
	updateConnectorState(id: $id, state: $state)
}`

// SetState persists the connector state on the platform.
func (c *Client) SetState(ctx context.Context, state State) error {
	encoded, err := state.Encode()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	variables := map[string]any{"id": c.connectorID, "state": encoded}
	var resp struct {
		UpdateConnectorState string `json:"updateConnectorState"`
	}
	if err := c.execute(ctx, stateUpdateMutation, variables, &resp); err != nil {
		return fmt.Errorf("update connector state: %w", err)
	}
	return nil
}

const stateQuery = `
query ConnectorState($id: String!) {
	connector(id: $id) {
		connector_state
	}
}`

// GetState reads the connector state stored on the platform.
func (c *Client) GetState(ctx context.Context) (State, error) {
	variables := map[string]any{"id": c.connectorID}
	var resp struct {
		Connector struct {
			ConnectorState string `json:"connector_state"`
		} `json:"connector"`
	}
	if err := c.execute(ctx, stateQuery, variables, &resp); err != nil {
		return State{}, fmt.Errorf("get connector state: %w", err)
	}
	return ParseState(resp.Connector.ConnectorState)
}

const pingQuery = `
query AboutVersion {
	about {
		version
	}
}`

// HealthCheck verifies the platform API is reachable and the token accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	var resp struct {
		About struct {
			Version string `json:"version"`
		} `json:"about"`
	}
	if err := c.execute(ctx, pingQuery, nil, &resp); err != nil {
		return fmt.Errorf("platform health check: %w", err)
	}
	return nil
}

// graphqlError is a single error entry in a GraphQL response.
type graphqlError struct {
	Message string `json:"message"`
}

// execute posts a GraphQL operation and decodes the data payload into out.
// Transport and server-side failures are retried; GraphQL errors are not.
func (c *Client) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	return retry.Do(ctx, c.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.Retryable(fmt.Errorf("graphql post: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.Retryable(fmt.Errorf("platform server error (status %d)", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var envelope struct {
			Data   json.RawMessage `json:"data"`
			Errors []graphqlError  `json:"errors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("decode graphql response: %w", err)
		}
		if len(envelope.Errors) > 0 {
			return fmt.Errorf("graphql error: %s", envelope.Errors[0].Message)
		}
		if out != nil {
			if err := json.Unmarshal(envelope.Data, out); err != nil {
				return fmt.Errorf("decode graphql data: %w", err)
			}
		}
		return nil
	})
}
