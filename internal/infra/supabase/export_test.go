package supabase

var IsInfraFailure = isInfraFailure
