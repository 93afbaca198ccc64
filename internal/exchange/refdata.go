// refdata.go implements reference-data lookups against the venue's
// catalogue endpoints. These feed the position-creation flow only; the
// core trading path never touches them.
package exchange

import (
	"context"
	"fmt"
	"net/http"
)

// Sport is one entry from GET /sports.
type Sport struct {
	SportID int    `json:"sportId"`
	Label   string `json:"label"`
}

// League is one entry from GET /leagues/active.
type League struct {
	LeagueID int    `json:"leagueId"`
	SportID  int    `json:"sportId"`
	Label    string `json:"label"`
	Active   bool   `json:"active"`
}

// Fixture is one entry from GET /fixture/active.
type Fixture struct {
	EventID      string `json:"eventId"`
	LeagueID     int    `json:"leagueId"`
	SportID      int    `json:"sportId"`
	Participant1 string `json:"participantOneName"`
	Participant2 string `json:"participantTwoName"`
	StartDate    string `json:"startDate"`
}

// Market is one entry from GET /markets/active. Outcome one corresponds
// to the internal OutcomeA, outcome two to OutcomeB.
type Market struct {
	MarketHash  string `json:"marketHash"`
	EventID     string `json:"eventId"`
	LeagueID    int    `json:"leagueId"`
	SportID     int    `json:"sportId"`
	OutcomeOne  string `json:"outcomeOneName"`
	OutcomeTwo  string `json:"outcomeTwoName"`
	MarketType  int    `json:"type"`
	GameTime    int64  `json:"gameTime"`
	MainLine    bool   `json:"mainLine"`
	LiveEnabled bool   `json:"liveEnabled"`
}

// Sports lists the venue's sports.
func (c *Client) Sports(ctx context.Context) ([]Sport, error) {
	var result struct {
		apiEnvelope
		Data []Sport `json:"data"`
	}
	if err := c.getRef(ctx, "/sports", nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// Leagues lists active leagues for a sport.
func (c *Client) Leagues(ctx context.Context, sportID int) ([]League, error) {
	var result struct {
		apiEnvelope
		Data []League `json:"data"`
	}
	params := map[string]string{"sportId": fmt.Sprintf("%d", sportID)}
	if err := c.getRef(ctx, "/leagues/active", params, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// Fixtures lists upcoming fixtures for a league.
func (c *Client) Fixtures(ctx context.Context, leagueID int) ([]Fixture, error) {
	var result struct {
		apiEnvelope
		Data []Fixture `json:"data"`
	}
	params := map[string]string{"leagueId": fmt.Sprintf("%d", leagueID)}
	if err := c.getRef(ctx, "/fixture/active", params, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// Markets lists active markets for a fixture.
func (c *Client) Markets(ctx context.Context, eventID string) ([]Market, error) {
	var result struct {
		apiEnvelope
		Data struct {
			Markets []Market `json:"markets"`
		} `json:"data"`
	}
	params := map[string]string{"eventId": eventID}
	if err := c.getRef(ctx, "/markets/active", params, &result); err != nil {
		return nil, err
	}
	return result.Data.Markets, nil
}

func (c *Client) getRef(ctx context.Context, path string, params map[string]string, result interface{}) error {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return err
	}

	req := c.http.R().SetContext(ctx).SetResult(result)
	for k, v := range params {
		req.SetQueryParam(k, v)
	}
	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return classifyResponse(resp.StatusCode(), resp.String())
	}
	return nil
}
