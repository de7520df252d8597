package auth

// User is the profile returned by the backend for the signed-in account
type User struct {
	ID            int     `json:"id"`
	Email         string  `json:"email"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	Avatar        *string `json:"avatar"`
	Bio           string  `json:"bio"`
	PhoneNumber   string  `json:"phone_number"`
	DateOfBirth   *string `json:"date_of_birth"`
	EmailVerified bool    `json:"email_verified"`
	AuthProvider  string  `json:"auth_provider"`
}

type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupPayload struct {
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Tokens is a pair handed over by an external sign-in flow
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type PasswordChangePayload struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

type PasswordResetPayload struct {
	Email string `json:"email"`
}

type PasswordResetConfirmPayload struct {
	UID                string `json:"uid"`
	Token              string `json:"token"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

type EmailConfirmPayload struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

// SocialURLs maps a provider name (google, github) to its authorization URL
type SocialURLs map[string]string

// loginResponse accepts both token field spellings the backend may send
type loginResponse struct {
	Access       string `json:"access"`
	AccessToken  string `json:"access_token"`
	Refresh      string `json:"refresh"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

func (r loginResponse) tokens() Tokens {
	t := Tokens{Access: r.Access, Refresh: r.Refresh}
	if t.Access == "" {
		t.Access = r.AccessToken
	}
	if t.Refresh == "" {
		t.Refresh = r.RefreshToken
	}
	return t
}

type logoutRequest struct {
	Refresh string `json:"refresh"`
}

type exchangeRequest struct {
	Code string `json:"code"`
}
