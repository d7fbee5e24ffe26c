package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"autoflow/internal/domain/flow"
	"autoflow/internal/errs"
	"autoflow/internal/ports"
)

// graphql posts one query against the Projects v2 API and decodes data into
// out. Response-level errors are fatal only when no usable data came back;
// the org/user double query below legitimately produces partial errors.
func (c *Client) graphql(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return errs.Wrap(err, "encode graphql request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return errs.Wrap(err, "build graphql request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(err, "call graphql endpoint")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graphql endpoint returned %s", resp.Status)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return errs.Wrap(err, "decode graphql response")
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		if len(envelope.Errors) > 0 {
			return fmt.Errorf("graphql query failed: %s", envelope.Errors[0].Message)
		}
		return errors.New("graphql query returned no data")
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return errs.Wrap(err, "decode graphql data")
	}
	return nil
}

const projectItemsQuery = `
query($owner: String!, $number: Int!, $cursor: String) {
  organization(login: $owner) { projectV2(number: $number) { ...items } }
  user(login: $owner) { projectV2(number: $number) { ...items } }
}
fragment items on ProjectV2 {
  id
  items(first: 100, after: $cursor) {
    pageInfo { hasNextPage endCursor }
    nodes {
      id
      fieldValueByName(name: "Status") {
        ... on ProjectV2ItemFieldSingleSelectValue { name }
      }
      content {
        ... on Issue {
          number
          title
          state
          stateReason
          repository { nameWithOwner }
          labels(first: 50) { nodes { name } }
          comments { totalCount }
          closedByPullRequestsReferences(first: 10, includeClosedPrs: true) {
            nodes { merged }
          }
        }
      }
    }
  }
}`

type projectV2Payload struct {
	ID    string `json:"id"`
	Items struct {
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
		Nodes []struct {
			ID               string `json:"id"`
			FieldValueByName *struct {
				Name string `json:"name"`
			} `json:"fieldValueByName"`
			Content *struct {
				Number      int    `json:"number"`
				Title       string `json:"title"`
				State       string `json:"state"`
				StateReason string `json:"stateReason"`
				Repository  struct {
					NameWithOwner string `json:"nameWithOwner"`
				} `json:"repository"`
				Labels struct {
					Nodes []struct {
						Name string `json:"name"`
					} `json:"nodes"`
				} `json:"labels"`
				Comments struct {
					TotalCount int `json:"totalCount"`
				} `json:"comments"`
				ClosedByPullRequestsReferences struct {
					Nodes []struct {
						Merged bool `json:"merged"`
					} `json:"nodes"`
				} `json:"closedByPullRequestsReferences"`
			} `json:"content"`
		} `json:"nodes"`
	} `json:"items"`
}

func (c *Client) ListItems(ctx context.Context) ([]flow.WorkItem, error) {
	boardURL := fmt.Sprintf("https://%s/users/%s/projects/%d", c.hostname, c.owner, c.projectNumber)

	var items []flow.WorkItem
	var cursor *string
	for {
		var data struct {
			Organization *struct {
				ProjectV2 *projectV2Payload `json:"projectV2"`
			} `json:"organization"`
			User *struct {
				ProjectV2 *projectV2Payload `json:"projectV2"`
			} `json:"user"`
		}
		err := c.graphql(ctx, projectItemsQuery, map[string]any{
			"owner":  c.owner,
			"number": c.projectNumber,
			"cursor": cursor,
		}, &data)
		if err != nil {
			return nil, errs.Wrap(err, "list project items")
		}

		var project *projectV2Payload
		switch {
		case data.Organization != nil && data.Organization.ProjectV2 != nil:
			project = data.Organization.ProjectV2
		case data.User != nil && data.User.ProjectV2 != nil:
			project = data.User.ProjectV2
		default:
			return nil, fmt.Errorf("project %d not found for owner %s", c.projectNumber, c.owner)
		}

		c.mu.Lock()
		c.projectID = project.ID
		c.mu.Unlock()

		for _, node := range project.Items.Nodes {
			if node.Content == nil {
				// Draft items and pull requests are not driveable work.
				continue
			}

			labels := make([]string, 0, len(node.Content.Labels.Nodes))
			for _, label := range node.Content.Labels.Nodes {
				labels = append(labels, label.Name)
			}
			status := ""
			if node.FieldValueByName != nil {
				status = node.FieldValueByName.Name
			}
			hasMerged := false
			for _, pull := range node.Content.ClosedByPullRequestsReferences.Nodes {
				if pull.Merged {
					hasMerged = true
					break
				}
			}

			items = append(items, flow.WorkItem{
				ItemID:        node.ID,
				BoardURL:      boardURL,
				IssueNumber:   node.Content.Number,
				Repository:    c.hostname + "/" + node.Content.Repository.NameWithOwner,
				Status:        status,
				Title:         node.Content.Title,
				Labels:        labels,
				IsClosed:      node.Content.State == "CLOSED",
				StateReason:   node.Content.StateReason,
				HasMergedWork: hasMerged,
				CommentCount:  node.Content.Comments.TotalCount,
			})
		}

		if !project.Items.PageInfo.HasNextPage {
			break
		}
		next := project.Items.PageInfo.EndCursor
		cursor = &next
	}

	return items, nil
}

const statusTimelineQuery = `
query($owner: String!, $name: String!, $number: Int!) {
  repository(owner: $owner, name: $name) {
    issue(number: $number) {
      timelineItems(first: 100, itemTypes: [ADDED_TO_PROJECT_EVENT, MOVED_COLUMNS_IN_PROJECT_EVENT]) {
        nodes {
          __typename
          ... on AddedToProjectEvent { actor { login } createdAt }
          ... on MovedColumnsInProjectEvent { actor { login } createdAt }
        }
      }
    }
  }
}`

func (c *Client) StatusTimeline(ctx context.Context, repository string, issueNumber int) ([]*flow.TimelineEvent, error) {
	owner, name, err := c.repoParts(repository)
	if err != nil {
		return nil, err
	}

	var data struct {
		Repository *struct {
			Issue *struct {
				TimelineItems struct {
					Nodes []*struct {
						Typename string `json:"__typename"`
						Actor    *struct {
							Login string `json:"login"`
						} `json:"actor"`
						CreatedAt time.Time `json:"createdAt"`
					} `json:"nodes"`
				} `json:"timelineItems"`
			} `json:"issue"`
		} `json:"repository"`
	}
	err = c.graphql(ctx, statusTimelineQuery, map[string]any{
		"owner":  owner,
		"name":   name,
		"number": issueNumber,
	}, &data)
	if err != nil {
		return nil, errs.Wrapf(err, "fetch timeline of %s#%d", repository, issueNumber)
	}
	if data.Repository == nil || data.Repository.Issue == nil {
		return nil, errs.Wrapf(ports.ErrTicketNotFound, "%s#%d", repository, issueNumber)
	}

	events := make([]*flow.TimelineEvent, 0, len(data.Repository.Issue.TimelineItems.Nodes))
	for _, node := range data.Repository.Issue.TimelineItems.Nodes {
		if node == nil {
			events = append(events, nil)
			continue
		}

		event := &flow.TimelineEvent{OccurredAt: node.CreatedAt}
		switch node.Typename {
		case "MovedColumnsInProjectEvent":
			event.Type = flow.EventStatusChanged
		case "AddedToProjectEvent":
			event.Type = flow.EventAddedToBoard
		default:
			continue
		}
		if node.Actor != nil && node.Actor.Login != "" {
			login := node.Actor.Login
			event.Actor = &login
		}
		events = append(events, event)
	}
	return events, nil
}

const linkedPullsQuery = `
query($owner: String!, $name: String!, $number: Int!) {
  repository(owner: $owner, name: $name) {
    issue(number: $number) {
      closedByPullRequestsReferences(first: 20, includeClosedPrs: true) {
        nodes { number state merged url }
      }
    }
  }
}`

func (c *Client) LinkedPullRequests(ctx context.Context, repository string, issueNumber int) ([]ports.LinkedPullRequest, error) {
	owner, name, err := c.repoParts(repository)
	if err != nil {
		return nil, err
	}

	var data struct {
		Repository *struct {
			Issue *struct {
				ClosedByPullRequestsReferences struct {
					Nodes []struct {
						Number int    `json:"number"`
						State  string `json:"state"`
						Merged bool   `json:"merged"`
						URL    string `json:"url"`
					} `json:"nodes"`
				} `json:"closedByPullRequestsReferences"`
			} `json:"issue"`
		} `json:"repository"`
	}
	err = c.graphql(ctx, linkedPullsQuery, map[string]any{
		"owner":  owner,
		"name":   name,
		"number": issueNumber,
	}, &data)
	if err != nil {
		return nil, errs.Wrapf(err, "fetch linked PRs of %s#%d", repository, issueNumber)
	}
	if data.Repository == nil || data.Repository.Issue == nil {
		return nil, errs.Wrapf(ports.ErrTicketNotFound, "%s#%d", repository, issueNumber)
	}

	nodes := data.Repository.Issue.ClosedByPullRequestsReferences.Nodes
	pulls := make([]ports.LinkedPullRequest, 0, len(nodes))
	for _, node := range nodes {
		pulls = append(pulls, ports.LinkedPullRequest{
			Number: node.Number,
			State:  node.State,
			Merged: node.Merged,
			URL:    node.URL,
		})
	}
	return pulls, nil
}

const statusFieldQuery = `
query($projectID: ID!) {
  node(id: $projectID) {
    ... on ProjectV2 {
      field(name: "Status") {
        ... on ProjectV2SingleSelectField {
          id
          options { id name }
        }
      }
    }
  }
}`

const setStatusMutation = `
mutation($projectID: ID!, $itemID: ID!, $fieldID: ID!, $optionID: String!) {
  updateProjectV2ItemFieldValue(input: {
    projectId: $projectID, itemId: $itemID, fieldId: $fieldID,
    value: { singleSelectOptionId: $optionID }
  }) { projectV2Item { id } }
}`

func (c *Client) SetItemStatus(ctx context.Context, itemID string, status string) error {
	if err := c.ensureStatusField(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	projectID := c.projectID
	fieldID := c.statusFieldID
	optionID, ok := c.statusOptions[status]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("status %q is not an option of the project's Status field", status)
	}

	var out struct {
		UpdateProjectV2ItemFieldValue struct {
			ProjectV2Item struct {
				ID string `json:"id"`
			} `json:"projectV2Item"`
		} `json:"updateProjectV2ItemFieldValue"`
	}
	err := c.graphql(ctx, setStatusMutation, map[string]any{
		"projectID": projectID,
		"itemID":    itemID,
		"fieldID":   fieldID,
		"optionID":  optionID,
	}, &out)
	if err != nil {
		return errs.Wrapf(err, "set status of item %s", itemID)
	}
	return nil
}

func (c *Client) ensureStatusField(ctx context.Context) error {
	c.mu.Lock()
	projectID := c.projectID
	cached := c.statusFieldID != ""
	c.mu.Unlock()
	if cached {
		return nil
	}
	if projectID == "" {
		// ListItems caches the project id as a side effect.
		if _, err := c.ListItems(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		projectID = c.projectID
		c.mu.Unlock()
	}

	var data struct {
		Node *struct {
			Field *struct {
				ID      string `json:"id"`
				Options []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"options"`
			} `json:"field"`
		} `json:"node"`
	}
	if err := c.graphql(ctx, statusFieldQuery, map[string]any{"projectID": projectID}, &data); err != nil {
		return errs.Wrap(err, "fetch project status field")
	}
	if data.Node == nil || data.Node.Field == nil {
		return errors.New("project has no Status single-select field")
	}

	c.mu.Lock()
	c.statusFieldID = data.Node.Field.ID
	for _, option := range data.Node.Field.Options {
		c.statusOptions[option.Name] = option.ID
	}
	c.mu.Unlock()
	return nil
}
