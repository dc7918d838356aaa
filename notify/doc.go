// Package notify delivers freshly issued secrets over SMS or email.
//
// Transports: [TwilioSMS] (Twilio REST), [SendGridEmail] (SendGrid v3 mail),
// [SMTPEmail] (gomail over any SMTP relay) and [WriterNotifier] for local
// development. [Router] picks a transport by channel.
//
// Delivery is a single best-effort attempt bounded by the caller's context.
// The SDK clients are not context-aware, so a timed-out call is abandoned
// rather than canceled.
package notify
