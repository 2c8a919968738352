package bot

const (
	welcomeText = "🚀 Welcome to the Avtius Trading Bot! 🤖\n\n" +
		"1. Create a new Ethereum wallet.\n" +
		"2. Enter your private key below.\n" +
		"3. Ensure you're connected to Galxe.\n\n" +
		"✨ Type your private key to continue.\n\n" +
		"🔑 Your private key should start with '0x' and be 64 characters long:\n\n" +
		"0x7db22a0839.......\n\n" +
		"💡 Example: 0x7db22a0839abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	keyReceivedText = "🔑 **Private Key Received!**\n\n" +
		"✨ Your account details:\n" +
		"📬 Address: %s\n\n" +
		"Please select a coin to claim:"

	keyShapeText   = `🚫 The private key should start with "0x" and be exactly 64 characters long (including "0x"). Please provide a valid private key.`
	keyInvalidText = "❌ The private key you provided is invalid. Please ensure it's a valid Ethereum private key and try again."
	noKeyText      = "❌ No private key found. Please provide your private key again by typing /start."
	logoutText     = "🔒 Your key was removed from this session. Type /start to begin again."
	strayKeyText   = "🔐 That looks like a private key, so it was deleted from the chat. Type /start if you want to switch wallets."

	claimTokenMissingText = "❌ ClaimToken for %s not found. Please contact support"
	claimGasText          = "🔄 Claim in progress\n\nYour balance is: %s Gas ⛽️\n"
	noGasText             = "❌ Insufficient gas. Please try again later or claim gas from the faucet."
	alreadyHeldText       = "✅ You already have a balance of %s %s.\nProceeding to the next step..."
	claimSuccessText      = "🎉 Claim successful!\n\n🔍 Your new %s balance:\n%s %s\n\n🚀 Ready for the next step!"
	cooldownText          = "❌ You need to wait for the cooldown period to pass before claiming more %s."
	claimErrorText        = "❌ Error processing claim.\n\n" +
		"We apologize for the inconvenience. Our team has been notified.\n" +
		"Please try again later or contact support if the issue persists."

	allowanceGrantedText = "✅ Maximum allowance already granted. Ready to trade."
	allowanceUpdatedText = "🎉 Allowance updated!\n\n🔍 Your new allowance for %s:\n%s %s\n\n🚀 Ready to trade!"
	approvalErrorText    = "❌ Error processing allowance approval. Please try again later."

	tradeOptionsText  = "🔥 Ready to trade! Select a token to trade:"
	tradeLockedText   = "❌ Please claim a token and approve its allowance before trading."
	tradePromptText   = "Your %s balance:\n%s %s\n\nCollateral %s : (Max: %s)"
	invalidAmountText = "Invalid amount. Please enter a number between 1 and %s."
	marketMissingText = "❌ Market for %s not found."
	tradeDetailsText  = "🔄 Trade Details:\n\n" +
		"- Market: %s\n" +
		"- Trade Amount: %s %s\n" +
		"- Current Price: %.2f USD\n" +
		"- Size Delta USD: %s USD\n" +
		"- Direction: Long\n\n" +
		"Executing trade..."
	tradeSuccessText = "✅ Trade executed successfully!\n\n" +
		"🔍 You can check your position in the Avtius dashboard.\n" +
		"🚀 What would you like to do next?"
	tradeErrorText  = "❌ Error: %s\n\nIf this persists, please contact support."
	nextActionsText = "Choose your next action:"

	portfolioHeaderText = "📊 Your portfolio\n\n📬 Address: %s\n⛽️ Gas: %s\n"

	helpText = "Need help? Here are some resources:\n\n" +
		"📚 User Guide: [link to user guide]\n" +
		"🆘 Support Channel: @AvtiusSupportChannel\n" +
		"❓ FAQ: [link to FAQ page]\n\n" +
		"If you need further assistance, please contact our support team."

	unexpectedErrorText = "An unexpected error occurred. Our team has been notified. Please try again later."
)

// Callback data understood by the controller.
const (
	callbackSelectCoin    = "select_coin_"
	callbackTrade         = "trade_"
	callbackViewPortfolio = "view_portfolio"
	callbackTradeAgain    = "trade_again"
	callbackGetHelp       = "get_help"
)

const cooldownReason = "Cooldown period has not passed"
