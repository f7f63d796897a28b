package funnel

// Funnel script copy. Wording lives here so the engine reads as pure
// control flow.

const (
	msgWelcome = "Welcome! 👋 Over the next few minutes we'll set you up with the free mini course."

	msgNameRequest = "First things first — what should we call you?"
	msgNameInvalid = "Please enter a valid name (at least 2 characters)."

	msgThreeSteps = "Here's how it works: three short steps — a few quick questions, the mini course, and a call with our team."

	msgVoiceInstruction = "Before the questions, your mentor recorded a short voice intro. Give it a listen 🎧"

	msgInstagram = "Want daily tips while you wait? Follow us on Instagram:"

	msgRegistrationSuccess = "%s, you're in! 🎉 Your personal access link to the mini course is ready below."

	msgWatchReminder = "Tip: the first lesson takes about 20 minutes. Find a quiet moment and watch it today."

	msgFollowUp1 = "Quick check-in — have you had a chance to watch the first lesson?"

	msgNoTimeResponse = "No worries! The course isn't going anywhere. Here's your link again — we'll check back a bit later."

	msgFollowUp2 = "Ready to pick up where you left off? The next part builds on lesson one."

	msgRatingRequest = "How would you rate what you've seen so far? Just type a number from 1 to 10."

	msgCourseIntro = "Great! Based on your answers, the full program could be a strong fit for you."

	msgTestimonialIntro = "Don't take our word for it — here's what recent members said:"

	msgSuccessStories = "And a few results from people who started exactly where you are:"

	msgImportantVoice = "One more thing — your mentor left you a personal message. It's worth the minute:"

	msgPhoneRequest = "To book your free consultation, share your phone number with the button below 👇"

	msgPhoneSaved = "Your number has been saved ✅"

	msgContactTimeQuestion = "When is the best time for our team to call you?"

	msgFinal = "All set! 🎉 Our team will reach out at your preferred time. See you inside the course!"

	msgAlreadyCompleted = "You have already completed registration! ✅"

	msgFinalPhotoCaption = "Spots for free consultations are almost gone this week. Share your number to claim yours 👇"

	courseButtonLabel    = "🎥 Open the mini course"
	instagramButtonLabel = "📱 Follow on Instagram"
	contactButtonLabel   = "Share my number"
)

// Callback data prefixes. A button press encodes "<prefix>_<option index>".
const (
	prefixQuestion1   = "q1"
	prefixQuestion2   = "q2"
	prefixQuestion3   = "q3"
	prefixQuestion4   = "q4"
	prefixFollowUp1   = "follow1"
	prefixFollowUp2   = "follow2"
	prefixContactTime = "contact"
)

const (
	question1Bare = "what best describes where you are right now?"
	question1     = "%s, " + question1Bare
)

var question1Options = []string{
	"Just curious, exploring options",
	"Actively looking to change things",
	"I tried before and it didn't stick",
}

const question2 = "What's your biggest obstacle at the moment?"

var question2Options = []string{
	"Not enough time",
	"Don't know where to start",
	"Tried things that didn't work",
	"Lack of support",
}

const question3 = "How much time could you realistically invest per week?"

var question3Options = []string{
	"Under 2 hours",
	"2–5 hours",
	"More than 5 hours",
}

const question4 = "If this works for you, when would you want to start?"

var question4Options = []string{
	"Right away",
	"Within a month",
	"Just gathering information",
}

var questionTexts = []string{question1, question2, question3, question4}

var questionOptions = [][]string{
	question1Options,
	question2Options,
	question3Options,
	question4Options,
}

var followUp1Options = []string{
	"I watched it ✅",
	"Not yet",
}

var followUp2Options = []string{
	"Let's continue ▶️",
}

var contactTimeOptions = []string{
	"Morning (9–12)",
	"Afternoon (12–17)",
	"Evening (17–21)",
}
