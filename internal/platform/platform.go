package platform

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

var (
	ErrForbidden = errors.New("platform: missing permissions")
	ErrNotFound  = errors.New("platform: not found")
)

// Member is the guild-scoped view of a user that eligibility and
// weighting decisions are made against.
type Member struct {
	ID       string
	Username string
	Bot      bool
	Roles    []string
	Boosting bool
}

func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

type User struct {
	ID       string
	Username string
	Bot      bool
}

// Client abstracts the Discord REST surface the engines need. The
// discordgo-backed implementation lives in Session; tests substitute
// in-memory fakes.
type Client interface {
	SendMessage(channelID, content string) error
	SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error)
	EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error
	AddReaction(channelID, messageID, emoji string) error
	ReactionUsers(channelID, messageID, emoji string) ([]User, error)
	GuildMember(guildID, userID string) (*Member, error)
	DMEmbed(userID string, embed *discordgo.MessageEmbed) error
	AddRole(guildID, userID, roleID string) error
	RemoveRole(guildID, userID, roleID string) error
	Ban(guildID, userID, reason string, deleteDays int) error
	Unban(guildID, userID string) error
}

type Session struct {
	s *discordgo.Session
}

func NewSession(s *discordgo.Session) *Session {
	return &Session{s: s}
}

func (c *Session) SendMessage(channelID, content string) error {
	_, err := c.s.ChannelMessageSend(channelID, content)
	return classify(err)
}

func (c *Session) SendEmbed(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	msg, err := c.s.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		return "", classify(err)
	}
	return msg.ID, nil
}

func (c *Session) EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	_, err := c.s.ChannelMessageEditEmbed(channelID, messageID, embed)
	return classify(err)
}

func (c *Session) AddReaction(channelID, messageID, emoji string) error {
	return classify(c.s.MessageReactionAdd(channelID, messageID, emoji))
}

// ReactionUsers pages through every user who reacted with emoji. Discord
// returns at most 100 users per request.
func (c *Session) ReactionUsers(channelID, messageID, emoji string) ([]User, error) {
	var users []User
	afterID := ""
	for {
		page, err := c.s.MessageReactions(channelID, messageID, emoji, 100, "", afterID)
		if err != nil {
			return nil, classify(err)
		}
		if len(page) == 0 {
			break
		}
		for _, u := range page {
			users = append(users, User{ID: u.ID, Username: u.Username, Bot: u.Bot})
		}
		afterID = page[len(page)-1].ID
		if len(page) < 100 {
			break
		}
	}
	return users, nil
}

func (c *Session) GuildMember(guildID, userID string) (*Member, error) {
	member, err := c.s.GuildMember(guildID, userID)
	if err != nil {
		return nil, classify(err)
	}
	m := &Member{
		ID:       userID,
		Roles:    member.Roles,
		Boosting: member.PremiumSince != nil,
	}
	if member.User != nil {
		m.Username = member.User.Username
		m.Bot = member.User.Bot
	}
	return m, nil
}

func (c *Session) DMEmbed(userID string, embed *discordgo.MessageEmbed) error {
	channel, err := c.s.UserChannelCreate(userID)
	if err != nil {
		return classify(err)
	}
	_, err = c.s.ChannelMessageSendEmbed(channel.ID, embed)
	return classify(err)
}

func (c *Session) AddRole(guildID, userID, roleID string) error {
	return classify(c.s.GuildMemberRoleAdd(guildID, userID, roleID))
}

func (c *Session) RemoveRole(guildID, userID, roleID string) error {
	return classify(c.s.GuildMemberRoleRemove(guildID, userID, roleID))
}

func (c *Session) Ban(guildID, userID, reason string, deleteDays int) error {
	return classify(c.s.GuildBanCreateWithReason(guildID, userID, reason, deleteDays))
}

func (c *Session) Unban(guildID, userID string) error {
	return classify(c.s.GuildBanDelete(guildID, userID))
}

// classify tags forbidden and not-found REST failures with the package
// sentinels while keeping Discord's error body for the logs.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}
	return err
}
