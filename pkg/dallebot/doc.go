/*
Package dallebot provides the DALL·E Telegram bot and the tooling to build and deploy its container.

The bot is most easily created by passing a yaml config to [GetBotFromConfig], but can also be created manually by populating a [Bot] struct.
After a bot struct was acquired, it can be started using [Bot.Run], which polls Telegram for updates in the background until the passed context is cancelled.
[Bot.Run] returns the bot's [Journal], the persistent anonymised request log which backs the per-user rate limits and the status server's statistics.

Deployments are created with [GetDeploymentFromConfig] or [DefaultDeployment].
[Deployment.Build] produces the bot's container image, failing on any build error.
[Deployment.Replace] idempotently swaps the running container for a fresh one: the previous instance is stopped and removed if it exists,
and the new one is started with the log volume mounted and restart policy always, so the journal survives both redeployments and host restarts.
[Deployment.FollowLogs] streams the deployed container's logs.
*/
package dallebot
