// Package httpapp provides the HTTP server for Stackit.
//
//	@title						Stackit API
//	@version					1.0
//	@description				Questions, answers and comments, with every submission screened by a content moderation service before it is stored.
//	@description
//	@description				## Authentication Flow
//	@description
//	@description				All write operations require a bearer token.
//	@description				```
//	@description				┌──────────────────┐     ┌──────────────────┐
//	@description				│  1. Register     │────▶│  2. Get Token    │
//	@description				│  POST /users     │     │  POST /auth/token│
//	@description				└──────────────────┘     └──────────────────┘
//	@description				```
//	@description
//	@description				### Step 1: Register
//	@description				```bash
//	@description				curl -X POST /api/users -d '{"username":"gopher","email":"gopher@example.com","password":"..."}'
//	@description				```
//	@description
//	@description				### Step 2: Get Bearer Token
//	@description				```bash
//	@description				curl -X POST /api/auth/token -d '{"username":"gopher","password":"..."}'
//	@description				# Returns: {"token": "TOKEN", "expires_at": "...", "user": {...}}
//	@description				```
//	@description
//	@description				## Moderation
//	@description				Blocked submissions are answered with 403 and a body such as
//	@description				```json
//	@description				{"error": "answer content was blocked by moderation", "type": "CONTENT_MODERATION",
//	@description				 "status": "blocked", "content_type": "answer", "moderation_action": "block", "reasons": ["spam"]}
//	@description				```
//	@description				When an image is the culprit the body also names its `url`. Nothing is stored for a blocked submission.
//	@description				If the moderation service is unreachable, submissions are accepted.
//
//	@contact.name				Stackit
//	@license.name				MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token from /api/auth/token
//
//	@tag.name					Questions
//	@tag.description			Ask, edit and delete questions. Tags are created on first use.
//
//	@tag.name					Answers
//	@tag.description			Answer questions. The question's owner may accept one answer at a time.
//
//	@tag.name					Comments
//	@tag.description			Flat comments on answers.
//
//	@tag.name					Votes
//	@tag.description			One vote per user per question or answer; repeat votes replace.
//
//	@tag.name					Files
//	@tag.description			Image uploads for avatars and post attachments.
//
//	@tag.name					Moderation
//	@tag.description			Direct access to the moderation gateway.
package httpapp
