package api

import "github.com/niels/ctf-server/pkg/store"

// FromChallenge converts a store challenge to its public view
func FromChallenge(c store.Challenge) ChallengeView {
	return ChallengeView{
		ChallengeID: c.ID,
		Category:    c.Category,
		Title:       c.Title,
		Description: c.Description,
		Points:      c.Points,
		Difficulty:  c.Difficulty,
	}
}

// FromUserLogin converts a store user to the login view
func FromUserLogin(u store.User) *LoginUser {
	return &LoginUser{
		UserID:   u.ID,
		Username: u.Username,
		Score:    u.Score,
	}
}

// FromUserProfile converts a store user to the profile view
func FromUserProfile(u store.User) ProfileView {
	view := ProfileView{
		UserID:   u.ID,
		Username: u.Username,
		Score:    u.Score,
	}
	if u.LastLogin != "" {
		lastLogin := u.LastLogin
		view.LastLogin = &lastLogin
	}
	return view
}
