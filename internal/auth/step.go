// File: internal/auth/step.go
package auth

// Step is a state of the login flow. Steps are entered strictly in declaration
// order; Settled and Aborted are terminal.
type Step int

const (
	StepNavigateToLogin Step = iota
	StepAwaitLoginButton
	StepClickLogin
	StepAwaitLoginFormVisible
	StepEnterEmail
	StepClickContinue
	StepAwaitPasswordPageVisible
	StepEnterPassword
	StepClickSubmit
	StepAwaitChatInterfaceVisible
	StepSettled
	StepAborted
)

var stepNames = map[Step]string{
	StepNavigateToLogin:           "navigate_to_login",
	StepAwaitLoginButton:          "await_login_button",
	StepClickLogin:                "click_login",
	StepAwaitLoginFormVisible:     "await_login_form_visible",
	StepEnterEmail:                "enter_email",
	StepClickContinue:             "click_continue",
	StepAwaitPasswordPageVisible:  "await_password_page_visible",
	StepEnterPassword:             "enter_password",
	StepClickSubmit:               "click_submit",
	StepAwaitChatInterfaceVisible: "await_chat_interface_visible",
	StepSettled:                   "settled",
	StepAborted:                   "aborted",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the flow ends in s.
func (s Step) Terminal() bool {
	return s == StepSettled || s == StepAborted
}
