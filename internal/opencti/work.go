package opencti

import (
	"context"
	"fmt"
)

const workAddMutation = `
mutation WorkAdd($connectorId: String!, $friendlyName: String) {
	workAdd(connectorId: $connectorId, friendlyName: $friendlyName) {
		id
	}
}`

// CreateWork opens a platform work tracking one import run and returns its ID.
func (c *Client) CreateWork(ctx context.Context, friendlyName string) (string, error) {
	variables := map[string]any{
		"connectorId":  c.connectorID,
		"friendlyName": friendlyName,
	}

	var resp struct {
		WorkAdd struct {
			ID string `json:"id"`
		} `json:"workAdd"`
	}
	if err := c.execute(ctx, workAddMutation, variables, &resp); err != nil {
		return "", fmt.Errorf("create work: %w", err)
	}
	return resp.WorkAdd.ID, nil
}

const addExpectationsMutation = `
mutation AddExpectations($id: ID!, $expectations: Int) {
	workEdit(id: $id) {
		addExpectations(expectations: $expectations)
	}
}`

// AddExpectations tells the platform how many bundles the work will receive,
// so it can report completion percentage.
func (c *Client) AddExpectations(ctx context.Context, workID string, expectations int) error {
	variables := map[string]any{"id": workID, "expectations": expectations}
	if err := c.execute(ctx, addExpectationsMutation, variables, nil); err != nil {
		return fmt.Errorf("add expectations: %w", err)
	}
	return nil
}

const workToProcessedMutation = `
mutation WorkToProcessed($id: ID!, $message: String, $inError: Boolean) {
	workEdit(id: $id) {
		toProcessed(message: $message, inError: $inError)
	}
}`

// CompleteWork closes a work with a final message. Set inError when the run
// failed.
func (c *Client) CompleteWork(ctx context.Context, workID, message string, inError bool) error {
	variables := map[string]any{"id": workID, "message": message, "inError": inError}
	if err := c.execute(ctx, workToProcessedMutation, variables, nil); err != nil {
		return fmt.Errorf("complete work: %w", err)
	}
	return nil
}
