package controllers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"tacotip-backend/database"
	"tacotip-backend/models"
)

const installScopes = "channels:history,chat:write,users:read"

// HandleSlackInstall starts the OAuth dance: a signed, expiring state token
// rides along to the authorize page and comes back on the redirect.
func HandleSlackInstall(c *fiber.Ctx) error {
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(deps.Cfg.SlackStateSecret))
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("client_id", deps.Cfg.SlackClientID)
	q.Set("scope", installScopes)
	q.Set("state", state)
	return c.Redirect("https://slack.com/oauth/v2/authorize?"+q.Encode(), fiber.StatusFound)
}

// HandleSlackOAuth completes the handshake: verify state, exchange the code,
// persist the installation, bounce the browser back into Slack.
func HandleSlackOAuth(c *fiber.Ctx) error {
	state := c.Query("state")
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(deps.Cfg.SlackStateSecret), nil
	})
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid state parameter")
	}

	code := c.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing code parameter")
	}

	resp, err := slack.GetOAuthV2ResponseContext(c.UserContext(), http.DefaultClient,
		deps.Cfg.SlackClientID, deps.Cfg.SlackClientSecret, code, "")
	if err != nil {
		deps.Log.Error("oauth exchange failed", "err", err)
		return fiber.NewError(fiber.StatusBadGateway, "failed to complete OAuth")
	}
	if resp.Team.ID == "" {
		return fiber.NewError(fiber.StatusBadGateway, "missing team in OAuth response")
	}
	if resp.TokenType != "bot" {
		return fiber.NewError(fiber.StatusBadGateway, "expected bot token in OAuth response")
	}

	inst := &models.Installation{
		TeamID:            resp.Team.ID,
		EnterpriseID:      resp.Enterprise.ID,
		BotToken:          resp.AccessToken,
		InstalledByUserID: resp.AuthedUser.ID,
	}
	if err := models.UpsertInstallation(database.DB, inst); err != nil {
		return err
	}
	deps.Log.Info("installation stored", "team", resp.Team.ID)

	return c.Redirect("slack://open", fiber.StatusFound)
}
